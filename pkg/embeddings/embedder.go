// Package embeddings
package embeddings

import "context"

// Embedder provides image embedding capabilities.
type Embedder interface {
	// Embed converts image bytes into a vector embedding.
	Embed(ctx context.Context, image []byte) ([]float32, error)

	// Dimension reports the width of the vectors Embed produces.
	Dimension() int

	// Close releases any resources held by the embedder.
	Close() error
}
