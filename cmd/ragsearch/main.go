package main

import (
	"flag"
	"fmt"
	"log"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/skillbase/ragengine/internal/app"
	"github.com/skillbase/ragengine/internal/config"
	"github.com/skillbase/ragengine/internal/domain"
	"github.com/skillbase/ragengine/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, courseID string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/ragengine/config.yaml if not provided)")
	flag.StringVar(&courseID, "course", "", "Restrict searches to one course id")
	flag.Parse()

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

	logger := zap.NewNop() // keep the TUI free of interleaved log lines
	svc, err := app.Build(cfg, logger)
	if err != nil {
		log.Fatalf("failed to assemble engine: %v", err)
	}
	defer func() { _ = svc.Close() }()

	scope := domain.Scope{CourseID: courseID}
	header := fmt.Sprintf("index: %s", cfg.DataRoot)
	if courseID != "" {
		header += "  course: " + courseID
	}

	m := tui.New(svc, scope, header)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}
