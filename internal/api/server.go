// Package api serves a persisted scan report over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/fraudscan/internal/domain"
)

// Server represents the HTTP report server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a report server over handler.
func NewServer(cfg domain.ServerConfig, handler *Handler) *Server {
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)                 // CORS for browser clients
	router.Use(RecoverMiddleware)              // Recover from panics
	router.Use(TracingMiddleware)              // OpenTelemetry tracing
	router.Use(RunMiddleware(handler.current)) // Served report run ID
	router.Use(LoggingMiddleware)              // Request logging
	router.Use(middleware.RealIP)              // Extract real IP
	router.Use(middleware.Compress(5))         // Gzip compression

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Get("/report", handler.GetReport)
	router.Get("/report.html", handler.GetReportHTML)
	router.Get("/summary", handler.GetSummary)
	router.Get("/providers", handler.ListProviders)
	router.Get("/providers/{npi}", handler.GetProvider)
	router.Get("/networks", handler.GetNetworks)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
