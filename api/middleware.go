package api

import (
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// requestIDKey is the locals key under which the id for the current request
// is stored.
const requestIDKey = "request_id"

// requestID returns the id assigned to the current request, or "" when the
// middleware has not run.
func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(requestIDKey).(string)
	return id
}

// assignRequestID tags every request with a correlation id. An incoming
// X-Request-ID is honored so callers can thread their own ids through, and
// the id is echoed back on the response either way.
func (s *Server) assignRequestID(c *fiber.Ctx) error {
	id := c.Get(fiber.HeaderXRequestID)
	if id == "" {
		id = uuid.NewString()
	}

	c.Locals(requestIDKey, id)
	c.Set(fiber.HeaderXRequestID, id)

	return c.Next()
}

// logRequests logs one line per request. Errors returned by inner handlers
// are resolved into responses here, so the logged status is the one sent.
func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()

	if err := c.Next(); err != nil {
		if err = s.renderError(c, err); err != nil {
			return err
		}
	}

	s.logger.Info("request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("duration", time.Since(start)),
		zap.String("request_id", requestID(c)),
	)

	return nil
}

// recoverPanics converts a handler panic into a 500 response instead of
// tearing down the connection. The stack goes to the log; the client gets
// the generic payload.
func (s *Server) recoverPanics(c *fiber.Ctx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
				zap.String("request_id", requestID(c)),
			)
			err = fiber.ErrInternalServerError
		}
	}()

	return c.Next()
}
