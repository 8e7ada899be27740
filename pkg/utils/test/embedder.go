package testutils

import (
	"context"
	"fmt"

	"github.com/keyframeco/prism/pkg/embeddings"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	Embeddings map[string][]float32

	// FailOn causes Embed to return an embedding failure when the input
	// image matches
	FailOn string

	// RejectOn causes Embed to reject the input image as invalid when it
	// matches
	RejectOn string

	// Dim is the reported dimension. Defaults to 3, matching the default
	// embedding.
	Dim int
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
		Dim:        3,
	}
}

func (m *MockEmbedder) Embed(_ context.Context, image []byte) ([]float32, error) {
	if m.FailOn != "" && string(image) == m.FailOn {
		return nil, fmt.Errorf("%w: mock embedding failure for: %s", embeddings.ErrEmbedding, m.FailOn)
	}

	if m.RejectOn != "" && string(image) == m.RejectOn {
		return nil, fmt.Errorf("%w: mock rejection for: %s", embeddings.ErrInvalidImage, m.RejectOn)
	}

	if emb, ok := m.Embeddings[string(image)]; ok {
		return emb, nil
	}

	// Return a default embedding for any image
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *MockEmbedder) Dimension() int {
	if m.Dim > 0 {
		return m.Dim
	}
	return 3
}

func (m *MockEmbedder) Close() error {
	return nil
}

// Ensure MockEmbedder implements embeddings.Embedder
var _ embeddings.Embedder = (*MockEmbedder)(nil)
