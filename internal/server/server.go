package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/transitops/gatekeeper/internal/config"
	"github.com/transitops/gatekeeper/internal/observability"
)

// Server wraps the HTTP server with lifecycle management.
type Server struct {
	httpServer *http.Server
	logger     observability.Logger
	shutdown   time.Duration
}

// NewServer creates a server over the given handler.
func NewServer(cfg config.ServerConfig, handler http.Handler, logger observability.Logger) *Server {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger:   logger,
		shutdown: cfg.ShutdownTimeout,
	}
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Info("http server starting",
		observability.String("addr", s.httpServer.Addr),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests within the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	if s.shutdown > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdown)
		defer cancel()
	}

	s.logger.Info("http server stopping")
	return s.httpServer.Shutdown(ctx)
}
