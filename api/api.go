package api

import (
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Server is the API server for searching and indexing images.
type Server struct {
	config Config
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
func NewServer(config Config, logger *slog.Logger) (*Server, error) {
	if config.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if config.Indexer == nil {
		return nil, errors.New("indexer is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})

	s := &Server{
		config: config,
		logger: logger,
		app:    app,
	}

	app.Use(recover.New())
	app.Use(s.corsMiddleware())

	app.Get("/health", s.handleHealth)

	app.Post("/api/search", s.handleSearch)
	app.Get("/api/search", s.handleSearchQuery)

	// Indexing routes need the key, /api/search stays public.
	auth := s.apiKeyMiddleware()
	app.Post("/api/index", auth, s.handleIndex)
	app.Post("/api/index-one", auth, s.handleIndexOne)
	app.Get("/api/index/status", auth, s.handleIndexStatus)
	app.Post("/api/update-payload", auth, s.handleUpdatePayload)
	app.Get("/api/missing-in-index", auth, s.handleMissing)

	return s, nil
}

// corsMiddleware allows credentials for explicit origins only.
func (s *Server) corsMiddleware() fiber.Handler {
	origins := s.config.CORSOrigins
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return cors.New()
	}
	return cors.New(cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowCredentials: true,
	})
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
