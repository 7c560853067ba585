package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alqatri/tbilltracker/pkg/config"
	"github.com/alqatri/tbilltracker/pkg/logger"
)

// Server is the operational HTTP surface: trigger runs, read reports and
// stored records. It is not a presentation layer.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
	cfg        *config.Config
}

// New creates the API server around a prepared router.
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.APIPort,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: log.Component("api"),
		cfg: cfg,
	}
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.log.WithFields(map[string]interface{}{
		"port": s.cfg.APIPort,
		"env":  s.cfg.Env,
	}).Info("Starting API server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("start api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down API server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown api server: %w", err)
	}
	return nil
}
