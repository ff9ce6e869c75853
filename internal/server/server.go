// Package server hosts the admin HTTP API: the route table, the
// middleware chain and the server lifecycle.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/app"
	"github.com/ternarybob/trutina/internal/common"
)

// Server manages the HTTP server and routes.
type Server struct {
	app     *app.App
	cfg     *common.Config
	logger  arbor.ILogger
	limiter *slidingWindow
	router  *http.ServeMux
	server  *http.Server
}

// New creates the HTTP server over an initialized application.
func New(application *app.App) *Server {
	s := &Server{
		app:    application,
		cfg:    application.Config,
		logger: application.Logger,
		router: http.NewServeMux(),
	}
	if limit := application.Config.Server.RateLimit; limit > 0 {
		s.limiter = newSlidingWindow(limit, time.Minute)
	}
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the fully wrapped handler chain.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	s.logger.Info().
		Str("address", s.server.Addr).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, draining in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
