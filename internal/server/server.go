// Package server provides the HTTP API for pdfmark.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/pdfmark/internal/config"
	"github.com/hyperjump/pdfmark/internal/identity"
	"github.com/hyperjump/pdfmark/internal/library"
	"github.com/hyperjump/pdfmark/internal/metrics"
	"github.com/hyperjump/pdfmark/internal/pdfinfo"
)

// Server is the HTTP server for the pdfmark API.
type Server struct {
	library  *library.Library
	raster   pdfinfo.Rasterizer
	resolver identity.Resolver
	config   *config.Config
	metrics  *metrics.Metrics
	logger   *zap.Logger
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records session counts and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	lib *library.Library,
	raster pdfinfo.Rasterizer,
	resolver identity.Resolver,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		library:  lib,
		raster:   raster,
		resolver: resolver,
		config:   cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())
	r.Get("/files/*", s.handlePublicFile)

	authenticated := identity.Middleware(s.resolver, s.logger)

	// Live sessions hold the connection open, so they skip the timeout and compression.
	r.With(authenticated).Get("/api/v1/documents/{id}/session", s.handleSession)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Logger)
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))
		r.Use(authenticated)

		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/api/v1/documents", s.handleListDocuments)
		r.Post("/api/v1/documents", s.handleUploadDocument)
		r.Get("/api/v1/documents/{id}", s.handleGetDocument)
		r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)
		r.Get("/api/v1/documents/{id}/file", s.handleDownloadDocument)
		r.Put("/api/v1/documents/{id}/annotations", s.handleSaveAnnotations)
		r.Get("/api/v1/documents/{id}/export", s.handleExportAnnotations)
		r.Get("/api/v1/documents/{id}/pages/{page}/overlay.png", s.handleOverlay)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
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
