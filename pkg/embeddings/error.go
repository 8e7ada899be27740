package embeddings

import "errors"

var (
	// ErrEmbedding indicates the embedding backend failed to produce a vector.
	ErrEmbedding = errors.New("failed generating embedding")

	// ErrInvalidImage indicates the model rejected the input image.
	ErrInvalidImage = errors.New("invalid image")

	// ErrProviderNotSupported indicates an unknown embedder provider type.
	ErrProviderNotSupported = errors.New("unsupported embedding provider")
)
