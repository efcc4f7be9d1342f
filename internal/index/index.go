package index

import (
	"math"

	"github.com/skillbase/ragengine/internal/domain"
)

// Index stores unit-norm vectors and supports exact top-k search by inner
// product. Row ids are dense, monotonically increasing and stable across
// Save/Load; they are the join key to the metadata store.
type Index interface {
	Add(vectors [][]float32) ([]int64, error)
	Search(query []float32, k int) ([]domain.Hit, error)
	Len() int
	Dimensions() int
	Save(path string) error
	Load(path string) error
	Truncate(rows int64) error
	Reset()
}

// Dot computes the inner product of two vectors. For unit-norm inputs this
// equals cosine similarity.
func Dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// Normalize scales the vector to unit L2 norm in place. Zero vectors are
// left untouched.
func Normalize(vec []float32) {
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
