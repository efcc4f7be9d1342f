package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
// Dimensions fixes the vector space for the whole deployment; it is never a
// per-call choice.
type EmbedderConfig struct {
	Type       string                `yaml:"type"`
	Dimensions int                   `yaml:"dimensions"`
	OpenAI     *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures the token windows documents are split into.
type ChunkerConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
}

// QdrantConfig contains connection details for a Qdrant vector index.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// IndexConfig selects and configures the vector index backend.
type IndexConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// RetrievalConfig tunes search over-fetching and checkpoint batching.
type RetrievalConfig struct {
	OverfetchFactor int `yaml:"overfetch_factor"`
	CheckpointEvery int `yaml:"checkpoint_every"`
}

// SummarizerConfig configures document preview summaries.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	DataRoot   string           `yaml:"data_root"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Index      IndexConfig      `yaml:"index"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
}

// Load reads a config from a specified path. If the file does not exist,
// returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragengine/config.yaml.
// If neither exists, it writes defaults to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragengine", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		DataRoot:   "data",
		Embedder:   EmbedderConfig{Type: "hash", Dimensions: 256},
		Chunker:    ChunkerConfig{ChunkSize: 200, Overlap: 20},
		Index:      IndexConfig{Type: "memory"},
		Retrieval:  RetrievalConfig{OverfetchFactor: 4, CheckpointEvery: 1},
		Summarizer: SummarizerConfig{MaxSentences: 5},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.DataRoot == "" {
		cfg.DataRoot = "data"
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hash"
	}
	if cfg.Embedder.Dimensions == 0 && cfg.Embedder.Type == "hash" {
		cfg.Embedder.Dimensions = 256
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 200
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 20
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "memory"
	}
	if cfg.Retrieval.OverfetchFactor == 0 {
		cfg.Retrieval.OverfetchFactor = 4
	}
	if cfg.Retrieval.CheckpointEvery == 0 {
		cfg.Retrieval.CheckpointEvery = 1
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 5
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
}
