package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/skillbase/ragengine/internal/domain"
)

// Default configuration values.
const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "text-embedding-3-small"
	DefaultTimeout    = 30 * time.Second
	defaultMaxRetries = 5
)

// Model dimensions for common OpenAI embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Client is an OpenAI-compatible embeddings client. It also understands the
// Ollama-native response shape so a local model can stand in for the API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
	maxRetries int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	// Dimensions fixes the expected vector size. When zero, the known size
	// for the model is used.
	Dimensions int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	t := cfg.Timeout
	if t == 0 {
		t = DefaultTimeout
	}
	dims := cfg.Dimensions
	if dims == 0 {
		dims = modelDimensions[cfg.Model]
	}
	if dims == 0 {
		return nil, fmt.Errorf("unknown model %q: dimensions must be configured", cfg.Model)
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		dimensions: dims,
		client:     &http.Client{Timeout: t},
		maxRetries: defaultMaxRetries,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Dimensions returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimensions() int { return c.dimensions }

// Embed returns a unit-norm embedding vector for the given text. The request
// is cancellable through ctx; timeouts, non-success responses and malformed
// output all surface as embedding-service errors.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	type reqBody struct {
		Input  string `json:"input,omitempty"`
		Prompt string `json:"prompt,omitempty"`
		Model  string `json:"model"`
	}
	url := fmt.Sprintf("%s/embeddings", c.baseURL)
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		body := reqBody{Input: text, Prompt: text, Model: c.model}
		data, _ := json.Marshal(body)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, domain.NewError(domain.KindEmbedding, "create request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, domain.NewError(domain.KindEmbedding, "embedding request cancelled", ctx.Err())
			}
			if attempt < c.maxRetries {
				if !sleepCtx(ctx, retryDelay(attempt)) {
					return nil, domain.NewError(domain.KindEmbedding, "embedding request cancelled", ctx.Err())
				}
				continue
			}
			return nil, domain.NewError(domain.KindEmbedding, "embedding request failed", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			delay := retryDelay(attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					delay = time.Duration(secs) * time.Second
				}
			}
			_ = resp.Body.Close()
			if attempt < c.maxRetries {
				if !sleepCtx(ctx, delay) {
					return nil, domain.NewError(domain.KindEmbedding, "embedding request cancelled", ctx.Err())
				}
				continue
			}
			return nil, domain.Errorf(domain.KindEmbedding, "embedding service returned %s", resp.Status)
		}

		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, domain.Errorf(domain.KindEmbedding, "embedding service returned %s", resp.Status)
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			if attempt < c.maxRetries {
				if !sleepCtx(ctx, retryDelay(attempt)) {
					return nil, domain.NewError(domain.KindEmbedding, "embedding request cancelled", ctx.Err())
				}
				continue
			}
			return nil, domain.NewError(domain.KindEmbedding, "read response", err)
		}
		if vec, ok := decodeEmbedding(payload); ok {
			return c.finish(vec)
		}
		if attempt < c.maxRetries {
			if !sleepCtx(ctx, retryDelay(attempt)) {
				return nil, domain.NewError(domain.KindEmbedding, "embedding request cancelled", ctx.Err())
			}
			continue
		}
		return nil, domain.Errorf(domain.KindEmbedding, "no embedding in response")
	}
	return nil, domain.Errorf(domain.KindEmbedding, "no embedding in response")
}

// decodeEmbedding tries the OpenAI-compatible shape first, then the
// Ollama-native one.
func decodeEmbedding(payload []byte) ([]float64, bool) {
	var openaiOut struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil {
		if len(openaiOut.Data) > 0 && len(openaiOut.Data[0].Embedding) > 0 {
			return openaiOut.Data[0].Embedding, true
		}
	}
	var ollamaOut struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil && len(ollamaOut.Embedding) > 0 {
		return ollamaOut.Embedding, true
	}
	return nil, false
}

// finish validates the dimension and renormalizes. Remote models usually
// return unit vectors already, but the index contract requires it.
func (c *Client) finish(raw []float64) ([]float32, error) {
	if len(raw) != c.dimensions {
		return nil, domain.Errorf(domain.KindEmbedding,
			"model returned %d dimensions, expected %d", len(raw), c.dimensions)
	}
	var sum float64
	for _, v := range raw {
		sum += v * v
	}
	if sum == 0 {
		return nil, domain.Errorf(domain.KindEmbedding, "model returned a zero vector")
	}
	norm := math.Sqrt(sum)
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v / norm)
	}
	return vec, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
