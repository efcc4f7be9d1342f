package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "hash", cfg.Embedder.Type)
	assert.Equal(t, 256, cfg.Embedder.Dimensions)
	assert.Equal(t, "memory", cfg.Index.Type)
	assert.Equal(t, 1, cfg.Retrieval.CheckpointEvery)
}

func TestLoad_AppliesDefaultsToPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker:\n  chunk_size: 50\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Chunker.ChunkSize)
	assert.Equal(t, 20, cfg.Chunker.Overlap)
	assert.Equal(t, 4, cfg.Retrieval.OverfetchFactor)
	assert.Equal(t, "data", cfg.DataRoot)
}

func TestLoad_OpenAIDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := "embedder:\n  type: openai\n  openai:\n    model: text-embedding-3-small\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedder.OpenAI.BaseURL)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, 30, cfg.Embedder.OpenAI.TimeoutSecs)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	cfg.Chunker.ChunkSize = 123
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 123, loaded.Chunker.ChunkSize)
}
