// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"

	"github.com/keyframeco/prism/pkg/embeddings"
	"github.com/keyframeco/prism/pkg/embeddings/clip"
	"github.com/keyframeco/prism/pkg/embeddings/mock"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	Dimension    int
}

func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	switch o.ProviderType {
	case "clip":
		return clip.NewEmbedder(clip.EmbedderConfig{
			BaseURL:   o.TargetURL,
			Model:     o.Model,
			Dimension: o.Dimension,
		})
	case "mock":
		return mock.NewEmbedder(o.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: %s", embeddings.ErrProviderNotSupported, o.ProviderType)
	}
}
