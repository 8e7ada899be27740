// Package clip implements pkg/embeddings' Embedder client for a CLIP
// inference service's HTTP API.
package clip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/keyframeco/prism/pkg/embeddings"
)

const (
	// DefaultModel is the default model used for image embeddings.
	DefaultModel = "clip-vit-base-patch32"

	// DefaultBaseURL is the default CLIP service URL.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultDimension is the embedding width of the default model.
	DefaultDimension = 512
)

// Embedder wraps a CLIP inference service's embedding API.
type Embedder struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
}

// EmbedderConfig holds configuration for the CLIP embedder.
type EmbedderConfig struct {
	// BaseURL is the CLIP service URL (e.g., "http://localhost:8000").
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Model is the embedding model to use. Defaults to DefaultModel if empty.
	Model string

	// Dimension is the embedding width the model produces. Defaults to
	// DefaultDimension if zero.
	Dimension int
}

// embedRequest is the request body for the CLIP service's embedding API.
type embedRequest struct {
	Model string `json:"model"`
	Image string `json:"image"`
}

// embedResponse is the response from the CLIP service's embedding API.
type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewEmbedder creates a new embedder using a CLIP service's embedding API.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = DefaultDimension
	}

	return &Embedder{
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

// Embed converts image bytes into a vector embedding.
func (e *Embedder) Embed(ctx context.Context, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image data", embeddings.ErrInvalidImage)
	}

	reqBody := embedRequest{
		Model: e.model,
		Image: base64.StdEncoding.EncodeToString(image),
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", embeddings.ErrEmbedding, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/embed", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", embeddings.ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sending request: %v", embeddings.ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: model rejected image: %s", embeddings.ErrInvalidImage, string(body))
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: clip service returned status %d: %s", embeddings.ErrEmbedding, resp.StatusCode, string(body))
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", embeddings.ErrEmbedding, err)
	}

	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", embeddings.ErrEmbedding)
	}

	if len(embedResp.Embedding) != e.dimension {
		return nil, fmt.Errorf("%w: embedding dimension %d, want %d", embeddings.ErrEmbedding, len(embedResp.Embedding), e.dimension)
	}

	return embedResp.Embedding, nil
}

// Dimension reports the embedding width the model produces.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Close releases resources held by the embedder.
func (e *Embedder) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

// Ensure Embedder implements embeddings.Embedder
var _ embeddings.Embedder = (*Embedder)(nil)
