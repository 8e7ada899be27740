package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/keyframeco/prism/pkg/service"
	"github.com/keyframeco/prism/pkg/stats"
)

// Server is the API server exposing image ingest, lookup, and similarity
// search over HTTP.
type Server struct {
	config  Config
	service *service.Service
	stats   *stats.Registry
	logger  *zap.Logger
	app     *fiber.App
}

// NewServer creates a new API server.
// The service and stats registry are injected to allow sharing with other
// components (e.g., the CLI when run in the same process).
func NewServer(config Config, svc *service.Service, registry *stats.Registry, logger *zap.Logger) *Server {
	s := &Server{
		config:  config,
		service: svc,
		stats:   registry,
		logger:  logger,
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.renderError,
	})

	s.app.Use(s.assignRequestID)
	s.app.Use(s.logRequests)
	s.app.Use(s.recoverPanics)

	s.app.Get("/health", s.handleHealth)
	s.app.Get("/stats", s.handleStats)
	s.app.Post("/v1/images", s.handleAddImage)
	s.app.Post("/v1/images/batch", s.handleBatchAddImages)
	s.app.Get("/v1/images/:id", s.handleGetImage)
	s.app.Delete("/v1/images/:id", s.handleDeleteImage)
	s.app.Post("/v1/search", s.handleSearch)

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
