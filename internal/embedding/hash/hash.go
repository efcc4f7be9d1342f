package hash

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/skillbase/ragengine/internal/domain"
)

// DefaultDimensions is used when no dimension is configured.
const DefaultDimensions = 256

// Embedder is a deterministic bag-of-words embedder. Each token is mapped to
// a coordinate via a stable FNV-1a hash modulo the dimension, token counts
// accumulate into that coordinate and the result is L2-normalized. Identical
// text always yields an identical vector, which makes it usable offline and
// as a test fixture.
type Embedder struct {
	dimensions   int
	tokenPattern *regexp.Regexp
}

// NewEmbedder creates a deterministic hash embedder with the given dimension.
func NewEmbedder(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{
		dimensions:   dimensions,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
	}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hash" }

// Dimensions returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimensions() int { return e.dimensions }

// Embed computes the hashed bag-of-words embedding for the given text.
// Text with no recognizable tokens fails validation; a zero vector cannot be
// normalized and would poison similarity scores.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := e.tokenize(text)
	if len(tokens) == 0 {
		return nil, domain.Errorf(domain.KindValidation, "no tokens to embed")
	}
	vec := make([]float32, e.dimensions)
	for _, tok := range tokens {
		vec[e.coordinate(tok)]++
	}
	normalize(vec)
	return vec, nil
}

func (e *Embedder) coordinate(token string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return int(h.Sum32() % uint32(e.dimensions))
}

func (e *Embedder) tokenize(text string) []string {
	return e.tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
