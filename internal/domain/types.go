package domain

import "time"

// Document is a unit of course material handed over by the ingestion side.
// The engine reads it once during ProcessDocument and never mutates it.
type Document struct {
	ID           string
	CourseID     string
	InstructorID string
	Title        string
	Text         string
	Metadata     map[string]string
	CreatedAt    time.Time
}

// Chunk is a bounded, overlapping slice of a document's text. Index is
// monotonic from 0 within the document.
type Chunk struct {
	DocumentID string
	Index      int
	Text       string
}

// MetadataEntry joins a vector row to its chunk content and provenance.
// RowID is the only join key between the vector index and this entry.
type MetadataEntry struct {
	RowID        int64             `json:"row_id"`
	DocumentID   string            `json:"document_id"`
	CourseID     string            `json:"course_id,omitempty"`
	InstructorID string            `json:"instructor_id,omitempty"`
	ChunkIndex   int               `json:"chunk_index"`
	Content      string            `json:"content"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Scope restricts search results to a course. The zero value matches
// everything; the engine does not validate the identifiers it is given.
type Scope struct {
	CourseID string
}

// Matches reports whether an entry falls inside the scope.
func (s Scope) Matches(e MetadataEntry) bool {
	return s.CourseID == "" || s.CourseID == e.CourseID
}

// SearchResult is a ranked chunk returned to the caller. Score is cosine
// similarity (all stored vectors and queries are unit-normalized).
type SearchResult struct {
	Content    string
	DocumentID string
	ChunkIndex int
	Score      float32
}

// Hit is a raw (row id, score) pair from the vector index, before any
// metadata lookup or scope filtering.
type Hit struct {
	RowID int64
	Score float32
}
