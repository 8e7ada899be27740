// Package mock implements a deterministic Embedder for running without a
// CLIP service. Vectors derive from the image content hash, so identical
// images always embed identically.
package mock

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/keyframeco/prism/pkg/embeddings"
)

// DefaultDimension matches the width of the default CLIP model.
const DefaultDimension = 512

// Embedder produces hash-derived pseudo-embeddings.
type Embedder struct {
	dimension int
}

// NewEmbedder creates a mock embedder producing vectors of the given width.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{dimension: dimension}
}

// Embed derives a deterministic vector from the image bytes.
func (e *Embedder) Embed(_ context.Context, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image data", embeddings.ErrInvalidImage)
	}

	sum := sha256.Sum256(image)
	vector := make([]float32, e.dimension)
	for i := range vector {
		vector[i] = float32(sum[i%len(sum)])/127.5 - 1.0
	}

	return vector, nil
}

// Dimension reports the configured vector width.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Close is a no-op.
func (e *Embedder) Close() error {
	return nil
}

// Ensure Embedder implements embeddings.Embedder
var _ embeddings.Embedder = (*Embedder)(nil)
