// Package app wires the engine together from configuration.
package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skillbase/ragengine/internal/chunker"
	"github.com/skillbase/ragengine/internal/config"
	"github.com/skillbase/ragengine/internal/embedding"
	"github.com/skillbase/ragengine/internal/embedding/hash"
	"github.com/skillbase/ragengine/internal/embedding/openai"
	"github.com/skillbase/ragengine/internal/index"
	"github.com/skillbase/ragengine/internal/index/memory"
	"github.com/skillbase/ragengine/internal/index/qdrant"
	"github.com/skillbase/ragengine/internal/metadata"
	"github.com/skillbase/ragengine/internal/persist"
	"github.com/skillbase/ragengine/internal/service"
)

// Build assembles a retrieval service from configuration. The returned
// service has already restored any persisted state; callers own Close.
func Build(cfg *config.AppConfig, log *zap.Logger) (*service.Service, error) {
	emb, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	idx, err := buildIndex(cfg, emb.Dimensions())
	if err != nil {
		return nil, err
	}

	ch, err := chunker.NewTokenChunker(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap)
	if err != nil {
		return nil, err
	}

	pm, err := persist.NewManager(cfg.DataRoot, log)
	if err != nil {
		return nil, err
	}

	return service.New(service.Config{
		OverfetchFactor: cfg.Retrieval.OverfetchFactor,
		CheckpointEvery: cfg.Retrieval.CheckpointEvery,
	}, ch, emb, idx, metadata.NewStore(), pm, log)
}

func buildEmbedder(cfg *config.AppConfig) (embedding.Embedder, error) {
	switch cfg.Embedder.Type {
	case "hash", "":
		return hash.NewEmbedder(cfg.Embedder.Dimensions), nil
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		return openai.NewClient(openai.Config{
			BaseURL:    cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv:  cfg.Embedder.OpenAI.APIKeyEnv,
			Model:      cfg.Embedder.OpenAI.Model,
			Timeout:    time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
			Dimensions: cfg.Embedder.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func buildIndex(cfg *config.AppConfig, dimensions int) (index.Index, error) {
	switch cfg.Index.Type {
	case "memory", "":
		return memory.NewIndex(dimensions)
	case "qdrant":
		if cfg.Index.Qdrant == nil {
			return nil, fmt.Errorf("qdrant index config missing")
		}
		return qdrant.NewIndex(qdrant.Config{
			URL:        cfg.Index.Qdrant.URL,
			APIKey:     cfg.Index.Qdrant.APIKey,
			Collection: cfg.Index.Qdrant.Collection,
			Dimensions: dimensions,
			Timeout:    time.Duration(cfg.Index.Qdrant.TimeoutSecs) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown index backend: %s", cfg.Index.Type)
	}
}
