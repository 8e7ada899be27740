package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/keyframeco/prism/pkg/vecstore"
)

// SearchRequest is the body of POST /v1/search: a query image plus optional
// metadata equality filters. Every filter must match (conjunction).
type SearchRequest struct {
	ImageData string         `json:"image_data"`
	TopK      int            `json:"top_k"`
	Filters   map[string]any `json:"filters,omitempty"`
}

// SearchResponse carries the ranked hits, best first.
type SearchResponse struct {
	Results      []vecstore.SearchResult `json:"results"`
	Total        int                     `json:"total"`
	SearchTimeMs int64                   `json:"search_time_ms"`
}

// handleSearch handles POST /v1/search requests: the query image is embedded
// and the most similar records are returned. top_k defaults to 5.
func (s *Server) handleSearch(c *fiber.Ctx) error {
	var req SearchRequest
	if err := c.BodyParser(&req); err != nil {
		return s.renderError(c, fmt.Errorf("%w: decoding request body: %v", vecstore.ErrInvalidArgument, err))
	}
	if req.ImageData == "" {
		return s.renderError(c, fmt.Errorf("%w: image_data is required", vecstore.ErrInvalidArgument))
	}

	topK := req.TopK
	if topK == 0 {
		topK = 5
	}

	start := time.Now()
	results, err := s.service.Search(c.Context(), c.IP(), req.ImageData, topK, req.Filters)
	if err != nil {
		return s.renderError(c, err)
	}
	if results == nil {
		results = []vecstore.SearchResult{}
	}

	return c.JSON(SearchResponse{
		Results:      results,
		Total:        len(results),
		SearchTimeMs: time.Since(start).Milliseconds(),
	})
}
