// Package server implements the Mission Control HTTP server.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/avntro/mission-control/config"
	"github.com/avntro/mission-control/internal/metrics"
	"github.com/avntro/mission-control/server/api"
)

// Server is the Mission Control HTTP server.
type Server struct {
	cfg      config.Config
	mux      *http.ServeMux
	httpSrv  *http.Server
	logger   *slog.Logger
	handlers *api.Handlers
	metrics  *metrics.Metrics

	once    sync.Once
	handler http.Handler
}

// New creates a Server serving h. m may be nil, in which case requests are
// not instrumented and /metrics is not mounted.
func New(cfg config.Config, h *api.Handlers, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		logger:   logger,
		handlers: h,
		metrics:  m,
	}
}

// Handler returns the fully routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() {
		s.registerRoutes()
		s.handler = s.metrics.Instrument(s.mux)
	})
	return s.handler
}

// Start registers routes and begins listening.
func (s *Server) Start() error {
	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":3335"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	s.handlers.RegisterRoutes(s.mux)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}
