// Package server provides the HTTP API for kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kotae-ai/kotae/internal/config"
	"github.com/kotae-ai/kotae/internal/ingest"
	"github.com/kotae-ai/kotae/internal/retrieval"
	"github.com/kotae-ai/kotae/internal/storage"
	"github.com/kotae-ai/kotae/internal/vector"
)

// Server is the HTTP server for the kotae API.
type Server struct {
	engine   *retrieval.Engine
	ingestor *ingest.Ingestor
	store    storage.Store
	index    vector.Index
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *retrieval.Engine,
	ingestor *ingest.Ingestor,
	store storage.Store,
	index vector.Index,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:   engine,
		ingestor: ingestor,
		store:    store,
		index:    index,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the chi router. Exposed for handler tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(180 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)

	// Everything under /api/v1 requires a verified tenant identity.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.tenantOnly)
		r.Post("/ask", s.handleAsk)
		r.Post("/documents", s.handleUpload)
		r.Get("/documents", s.handleListDocuments)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
		r.Get("/status", s.handleStatus)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
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
