// Package server provides the HTTP API for ArtAtlas.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/artatlas/internal/catalog"
	"github.com/hyperjump/artatlas/internal/config"
	"github.com/hyperjump/artatlas/internal/search"
	"github.com/hyperjump/artatlas/internal/storage"
)

// DirectoryLister reports the catalog directories being watched.
type DirectoryLister interface {
	Directories() []string
}

// Server is the HTTP server for the ArtAtlas API.
type Server struct {
	engine   *search.Engine
	pipeline *catalog.Pipeline
	storage  storage.Storage
	config   *config.Config
	watch    DirectoryLister
	logger   *zap.Logger
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithWatcher reports the watcher's directories in /api/v1/status.
func WithWatcher(w DirectoryLister) Option {
	return func(s *Server) { s.watch = w }
}

// NewServer creates a server with the given dependencies. pipeline may be nil, in which
// case /api/v1/affinities is unavailable.
func NewServer(
	engine *search.Engine,
	pipeline *catalog.Pipeline,
	storage storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:   engine,
		pipeline: pipeline,
		storage:  storage,
		config:   cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/api/search", s.handleSearchQuery)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Get("/concepts", s.handleConcepts)
		r.Post("/concepts/refresh", s.handleConceptsRefresh)
		r.Post("/affinities", s.handleAffinities)
		r.Get("/artworks/{id}", s.handleGetArtwork)
		r.Get("/essays/{id}", s.handleGetEssay)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
