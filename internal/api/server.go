package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/globallink/pkg/config"
	"github.com/wonny/globallink/pkg/logger"
)

// Server serves the ops endpoints next to the scheduler
// ⭐ SSOT: HTTP 서버 설정은 이 파일에서만
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
	port       string
}

// New creates a server on METRICS_PORT
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.MetricsPort,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: log,
		port:   cfg.MetricsPort,
	}
}

// Start blocks serving until Shutdown
func (s *Server) Start() error {
	s.logger.WithField("port", s.port).Info("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
