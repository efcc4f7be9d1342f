package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/skillbase/ragengine/internal/app"
	"github.com/skillbase/ragengine/internal/config"
	"github.com/skillbase/ragengine/internal/domain"
	"github.com/skillbase/ragengine/internal/summarizer"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, courseID, instructorID string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/ragengine/config.yaml if not provided)")
	flag.StringVar(&courseID, "course", "", "Course id to attach to the ingested documents")
	flag.StringVar(&instructorID, "instructor", "", "Instructor id to attach to the ingested documents")
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) == 0 {
		fmt.Println("Usage: ragindex [--config=config.yaml] [--course=id] file1.txt [file2.txt ...]")
		os.Exit(1)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	svc, err := app.Build(cfg, logger)
	if err != nil {
		log.Fatalf("failed to assemble engine: %v", err)
	}
	defer func() { _ = svc.Close() }()

	sum := summarizer.NewFrequencySummarizer()
	ok := color.New(color.FgGreen, color.Bold).SprintFunc()
	fail := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.FgHiBlack).SprintFunc()

	ctx := context.Background()
	paths := expand(inputs)
	indexed := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("%s %s: %v\n", fail("FAIL"), path, err)
			continue
		}
		doc := domain.Document{
			ID:           uuid.NewString(),
			CourseID:     courseID,
			InstructorID: instructorID,
			Title:        filepath.Base(path),
			Text:         string(data),
			Metadata:     map[string]string{"source": path},
		}
		n, err := svc.ProcessDocument(ctx, doc)
		if err != nil {
			fmt.Printf("%s %s: %v\n", fail("FAIL"), path, err)
			continue
		}
		preview, _ := sum.Summarize(doc.Text, cfg.Summarizer.MaxSentences)
		fmt.Printf("%s %s (%d chunks)\n", ok("OK"), path, n)
		if preview != "" {
			fmt.Printf("  %s\n", dim(preview))
		}
		indexed++
	}
	fmt.Printf("Indexed %d of %d documents into %s\n", indexed, len(paths), cfg.DataRoot)
}

// expand resolves glob patterns and keeps only .txt files, matching what the
// ingestion side hands over today.
func expand(inputs []string) []string {
	var paths []string
	for _, p := range inputs {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			if strings.HasSuffix(strings.ToLower(m), ".txt") {
				paths = append(paths, m)
			}
		}
	}
	return paths
}
