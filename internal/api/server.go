// Package api implements the ingress HTTP surface: lead submission, rule
// authoring, and the operational read endpoints for worker liveness and
// queue depth.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/lead-pipeline/internal/config"
	"github.com/ignite/lead-pipeline/internal/pkg/logger"
)

// Server is the ingress HTTP server.
type Server struct {
	config   config.ServerConfig
	router   *chi.Mux
	handlers *Handlers
	server   *http.Server
}

// NewServer creates the ingress server with routes mounted.
func NewServer(cfg config.ServerConfig, handlers *Handlers) *Server {
	return &Server{
		config:   cfg,
		router:   SetupRoutes(handlers),
		handlers: handlers,
	}
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	logger.Info("ingress server listening", "addr", addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the mounted router for tests.
func (s *Server) Handler() http.Handler { return s.router }
