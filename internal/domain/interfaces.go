package domain

import "context"

// Embedder converts free text into a unit-norm vector of fixed dimension.
// Implementations must be consistent within one vector space: the service
// never mixes embedders inside a single document batch.
type Embedder interface {
	Name() string
	Dimensions() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits raw document text into ordered, overlapping chunks.
type Chunker interface {
	Chunk(text string) []string
}

// VectorIndex stores unit-norm vectors and supports exact top-k search by
// inner product. Add assigns dense, monotonically increasing row ids that are
// stable across Save/Load and never reused. Truncate rewinds to a row-count
// prefix, dropping only the newest rows.
type VectorIndex interface {
	Add(vectors [][]float32) ([]int64, error)
	Search(query []float32, k int) ([]Hit, error)
	Len() int
	Dimensions() int
	Save(path string) error
	Load(path string) error
	Truncate(rows int64) error
	Reset()
}

// MetadataStore is an append-only mapping from vector row id to chunk content
// and provenance. Every row id in the index has exactly one entry.
type MetadataStore interface {
	Put(entry MetadataEntry) error
	Get(rowID int64) (MetadataEntry, error)
	Len() int
	Save(path string) error
	Load(path string) error
	Truncate(rows int64) error
	Reset()
}

// Summarizer produces a brief extractive summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// RetrievalService is the engine surface exposed to collaborators.
type RetrievalService interface {
	ProcessDocument(ctx context.Context, doc Document) (chunksCreated int, err error)
	Search(ctx context.Context, query string, scope Scope, topK int) ([]SearchResult, error)
}
