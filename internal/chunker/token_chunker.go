package chunker

import (
	"strings"

	"github.com/skillbase/ragengine/internal/domain"
)

// TokenChunker splits text into overlapping windows of whitespace-delimited
// tokens. Windows advance by chunkSize-overlap tokens; the final window may be
// shorter than chunkSize.
type TokenChunker struct {
	chunkSize int
	overlap   int
}

// NewTokenChunker validates the window parameters. Overlap must be strictly
// less than the chunk size, otherwise the window would never advance.
func NewTokenChunker(chunkSize, overlap int) (*TokenChunker, error) {
	if chunkSize <= 0 {
		return nil, domain.Errorf(domain.KindValidation, "chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return nil, domain.Errorf(domain.KindValidation, "overlap must not be negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return nil, domain.Errorf(domain.KindValidation, "overlap %d must be less than chunk size %d", overlap, chunkSize)
	}
	return &TokenChunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Chunk splits text into ordered chunk strings. Empty or whitespace-only
// input yields an empty result. The function is pure and deterministic.
func (c *TokenChunker) Chunk(text string) []string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}
	step := c.chunkSize - c.overlap
	var chunks []string
	for start := 0; start < len(tokens); start += step {
		end := start + c.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, strings.Join(tokens[start:end], " "))
		if end == len(tokens) {
			break
		}
	}
	return chunks
}
