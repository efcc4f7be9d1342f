package qdrant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/skillbase/ragengine/internal/domain"
	"github.com/skillbase/ragengine/internal/index"
)

// Index is a minimal REST adapter to a Qdrant collection behind the same
// row-id contract as the in-memory index. It assumes cosine distance and
// creates the collection if missing. Durability is server-side, so Save is a
// no-op and Load only restores the row counter from the collection size.
type Index struct {
	mu         sync.Mutex
	url        string
	apiKey     string
	collection string
	dimensions int
	rows       int64
	client     *http.Client
}

// Config contains connection details for a Qdrant collection.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimensions int
	Timeout    time.Duration
}

// NewIndex creates the adapter and ensures the collection exists with the
// configured dimension.
func NewIndex(cfg Config) (*Index, error) {
	if cfg.Dimensions <= 0 {
		return nil, domain.Errorf(domain.KindValidation, "index dimension must be positive, got %d", cfg.Dimensions)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	idx := &Index{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: timeout},
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     cfg.Dimensions,
			"distance": "Cosine",
		},
	}
	// Qdrant returns 200 if the collection already exists with the same schema.
	if err := idx.putJSON(fmt.Sprintf("%s/collections/%s", idx.url, idx.collection), body); err != nil {
		return nil, err
	}
	return idx, nil
}

// Add upserts vectors as numbered points and returns their row ids.
func (idx *Index) Add(vectors [][]float32) ([]int64, error) {
	for i, v := range vectors {
		if len(v) != idx.dimensions {
			return nil, domain.Errorf(domain.KindValidation,
				"vector %d has %d dimensions, index expects %d", i, len(v), idx.dimensions)
		}
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	ids := make([]int64, len(vectors))
	points := make([]map[string]any, len(vectors))
	for i, v := range vectors {
		ids[i] = idx.rows + int64(i)
		points[i] = map[string]any{"id": ids[i], "vector": v}
	}
	body := map[string]any{"points": points}
	if err := idx.putJSON(fmt.Sprintf("%s/collections/%s/points?wait=true", idx.url, idx.collection), body); err != nil {
		return nil, err
	}
	idx.rows += int64(len(vectors))
	return ids, nil
}

// Search returns up to k hits sorted by descending cosine similarity.
func (idx *Index) Search(query []float32, k int) ([]domain.Hit, error) {
	if len(query) != idx.dimensions {
		return nil, domain.Errorf(domain.KindValidation,
			"query has %d dimensions, index expects %d", len(query), idx.dimensions)
	}
	if k <= 0 {
		return []domain.Hit{}, nil
	}
	req := map[string]any{
		"vector": query,
		"limit":  k,
	}
	var resp struct {
		Result []struct {
			ID    int64   `json:"id"`
			Score float32 `json:"score"`
		} `json:"result"`
	}
	if err := idx.postJSON(fmt.Sprintf("%s/collections/%s/points/search", idx.url, idx.collection), req, &resp); err != nil {
		return nil, err
	}
	hits := make([]domain.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, domain.Hit{RowID: r.ID, Score: r.Score})
	}
	return hits, nil
}

// Len returns the number of stored vectors.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return int(idx.rows)
}

// Dimensions returns the fixed vector dimension.
func (idx *Index) Dimensions() int { return idx.dimensions }

// Save is a no-op; the collection is durable on the Qdrant server.
func (idx *Index) Save(string) error { return nil }

// Load restores the row counter from the remote collection size so row ids
// keep advancing after a restart.
func (idx *Index) Load(string) error {
	var resp struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
		} `json:"result"`
	}
	if err := idx.getJSON(fmt.Sprintf("%s/collections/%s", idx.url, idx.collection), &resp); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.rows = resp.Result.PointsCount
	return nil
}

// Truncate deletes points with id >= rows and rewinds the row counter. Only
// the newest points go; the surviving prefix stays on the server untouched.
func (idx *Index) Truncate(rows int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if rows < 0 || rows > idx.rows {
		return domain.Errorf(domain.KindValidation,
			"cannot truncate index of %d rows to %d", idx.rows, rows)
	}
	if rows == idx.rows {
		return nil
	}
	ids := make([]int64, 0, idx.rows-rows)
	for id := rows; id < idx.rows; id++ {
		ids = append(ids, id)
	}
	body := map[string]any{"points": ids}
	if err := idx.postJSON(fmt.Sprintf("%s/collections/%s/points/delete?wait=true", idx.url, idx.collection), body, nil); err != nil {
		return err
	}
	idx.rows = rows
	return nil
}

// Reset drops and recreates the collection.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/collections/%s", idx.url, idx.collection), nil)
	idx.setAuth(req)
	if resp, err := idx.client.Do(req); err == nil {
		_ = resp.Body.Close()
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     idx.dimensions,
			"distance": "Cosine",
		},
	}
	_ = idx.putJSON(fmt.Sprintf("%s/collections/%s", idx.url, idx.collection), body)
	idx.rows = 0
}

func (idx *Index) setAuth(req *http.Request) {
	if idx.apiKey != "" {
		req.Header.Set("api-key", idx.apiKey)
	}
}

func (idx *Index) putJSON(url string, body any) error {
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPut, url, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	idx.setAuth(req)
	resp, err := idx.client.Do(req)
	if err != nil {
		return domain.NewError(domain.KindIndexIO, "qdrant PUT failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return domain.Errorf(domain.KindIndexIO, "qdrant PUT %s failed: %s", url, resp.Status)
	}
	return nil
}

func (idx *Index) postJSON(url string, body any, out any) error {
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	idx.setAuth(req)
	resp, err := idx.client.Do(req)
	if err != nil {
		return domain.NewError(domain.KindIndexIO, "qdrant POST failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return domain.Errorf(domain.KindIndexIO, "qdrant POST %s failed: %s", url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (idx *Index) getJSON(url string, out any) error {
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	idx.setAuth(req)
	resp, err := idx.client.Do(req)
	if err != nil {
		return domain.NewError(domain.KindIndexIO, "qdrant GET failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return domain.Errorf(domain.KindIndexIO, "qdrant GET %s failed: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ index.Index = (*Index)(nil)
