package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/keyframeco/prism/pkg/embeddings"
	"github.com/keyframeco/prism/pkg/service"
	"github.com/keyframeco/prism/pkg/vecstore"
)

// AddImageRequest is the body of POST /v1/images. ImageData carries the
// base64-encoded image, with or without a data URI prefix.
type AddImageRequest struct {
	ID        string         `json:"id"`
	ImageData string         `json:"image_data"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AddImageResponse confirms a single ingest.
type AddImageResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// BatchAddRequest is the body of POST /v1/images/batch.
type BatchAddRequest struct {
	Images []AddImageRequest `json:"images"`
}

// ErrorResponse is the payload of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`

	// Inserted and Count report partial batch completion: the ids that were
	// durably stored before the failure.
	Inserted []string `json:"inserted,omitempty"`
	Count    int      `json:"count,omitempty"`
}

// handleHealth reports service and store liveness. A failed store probe shows
// up in the body as a degraded status, never as an error response.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(s.service.Health(c.Context()))
}

// handleStats returns collection statistics merged with the API counters.
func (s *Server) handleStats(c *fiber.Ctx) error {
	out, err := s.service.Stats(c.Context())
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(out)
}

// handleAddImage ingests a single image record.
func (s *Server) handleAddImage(c *fiber.Ctx) error {
	var req AddImageRequest
	if err := c.BodyParser(&req); err != nil {
		return s.renderError(c, fmt.Errorf("%w: decoding request body: %v", vecstore.ErrInvalidArgument, err))
	}
	if err := validateImagePayload(req.ID, req.ImageData); err != nil {
		return s.renderError(c, err)
	}

	record, err := s.service.AddImage(c.Context(), c.IP(), req.ID, req.ImageData, req.Metadata)
	if err != nil {
		return s.renderError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(AddImageResponse{
		ID:     record.ID,
		Status: "created",
	})
}

// handleBatchAddImages ingests a batch of image records in one request.
func (s *Server) handleBatchAddImages(c *fiber.Ctx) error {
	var req BatchAddRequest
	if err := c.BodyParser(&req); err != nil {
		return s.renderError(c, fmt.Errorf("%w: decoding request body: %v", vecstore.ErrInvalidArgument, err))
	}
	if len(req.Images) == 0 {
		return s.renderError(c, fmt.Errorf("%w: images must contain at least one item", vecstore.ErrInvalidArgument))
	}

	items := make([]service.BatchItem, 0, len(req.Images))
	for _, img := range req.Images {
		if err := validateImagePayload(img.ID, img.ImageData); err != nil {
			return s.renderError(c, err)
		}
		items = append(items, service.BatchItem{
			ID:        img.ID,
			ImageData: img.ImageData,
			Metadata:  img.Metadata,
		})
	}

	result, err := s.service.BatchAddImages(c.Context(), c.IP(), items)
	if err != nil {
		return s.renderError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// handleGetImage returns a single record by its id.
func (s *Server) handleGetImage(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return s.renderError(c, fmt.Errorf("%w: id parameter required", vecstore.ErrInvalidArgument))
	}

	record, err := s.service.GetImage(c.Context(), id)
	if err != nil {
		return s.renderError(c, err)
	}

	return c.JSON(record)
}

// handleDeleteImage removes a record by its id.
func (s *Server) handleDeleteImage(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return s.renderError(c, fmt.Errorf("%w: id parameter required", vecstore.ErrInvalidArgument))
	}

	if err := s.service.DeleteImage(c.Context(), id); err != nil {
		return s.renderError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// validateImagePayload enforces the request-shape rules shared by the single
// and batch ingest endpoints.
func validateImagePayload(id, imageData string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", vecstore.ErrInvalidArgument)
	}
	if len(id) > vecstore.MaxIDLength {
		return fmt.Errorf("%w: id exceeds %d characters", vecstore.ErrInvalidArgument, vecstore.MaxIDLength)
	}
	if imageData == "" {
		return fmt.Errorf("%w: image_data is required", vecstore.ErrInvalidArgument)
	}
	return nil
}

// renderError writes the taxonomy-mapped payload for err. Only 5xx responses
// count toward the error counter; their cause is logged with the request id
// while the client sees a generic message.
func (s *Server) renderError(c *fiber.Ctx, err error) error {
	status, name, message := classifyError(err)

	resp := ErrorResponse{
		Error:     name,
		Message:   message,
		RequestID: requestID(c),
	}

	var batchErr *vecstore.BatchError
	if errors.As(err, &batchErr) && len(batchErr.Inserted) > 0 {
		resp.Inserted = batchErr.Inserted
		resp.Count = len(batchErr.Inserted)
	}

	if status >= fiber.StatusInternalServerError {
		s.stats.RecordError()
		s.logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("request_id", requestID(c)),
			zap.Error(err),
		)
	}

	return c.Status(status).JSON(resp)
}

// classifyError maps an error onto a status code, taxonomy name, and client
// message. Sentinel checks run before the fiber.Error fallback so a wrapped
// sentinel always wins over a bare status.
func classifyError(err error) (status int, name, message string) {
	var fiberErr *fiber.Error

	switch {
	case errors.Is(err, vecstore.ErrInvalidArgument):
		return fiber.StatusBadRequest, "invalid_argument", err.Error()
	case errors.Is(err, service.ErrConflict):
		return fiber.StatusConflict, "conflict", err.Error()
	case errors.Is(err, vecstore.ErrNotFound):
		return fiber.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, service.ErrRateLimited):
		return fiber.StatusTooManyRequests, "rate_limited", err.Error()
	case errors.Is(err, embeddings.ErrInvalidImage):
		return fiber.StatusUnprocessableEntity, "invalid_image", err.Error()
	case errors.As(err, &fiberErr):
		if fiberErr.Code >= fiber.StatusInternalServerError {
			return fiberErr.Code, "internal_error", "internal server error"
		}
		return fiberErr.Code, errorName(fiberErr.Code), fiberErr.Message
	case errors.Is(err, embeddings.ErrEmbedding):
		return fiber.StatusInternalServerError, "internal_error", "internal server error"
	default:
		// Unclassified errors come from the store: every other failure
		// source wraps one of the sentinels above.
		return fiber.StatusInternalServerError, "store_error", "vector store unavailable"
	}
}

// errorName derives a snake_case taxonomy name from an HTTP status.
func errorName(status int) string {
	return strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
}
