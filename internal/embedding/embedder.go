package embedding

import "context"

// Embedder converts free text into a unit-norm vector of fixed dimension.
// Implementations must produce exactly Dimensions() coordinates; failing to
// L2-normalize is a defect, not a design variance.
type Embedder interface {
	Name() string
	Dimensions() int
	Embed(ctx context.Context, text string) ([]float32, error)
}
