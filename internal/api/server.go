package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yari4ek89/siverbotv2/internal/config"
	"github.com/yari4ek89/siverbotv2/internal/logger"
)

// Server is the operator HTTP server.
type Server struct {
	engine *gin.Engine
	server *http.Server
	cfg    config.ServerConfig
	log    logger.Logger
}

// NewServer builds the gin engine with the standard middleware chain and the
// handler's routes.
func NewServer(cfg config.ServerConfig, debug bool, log logger.Logger, h *Handler) *Server {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log = log.With(logger.Component("api"))

	engine := gin.New()
	engine.Use(RecoveryMiddleware(log))
	engine.Use(RequestIDMiddleware())
	engine.Use(LoggerMiddleware(log))
	engine.Use(CORSMiddleware(cfg.CORSOrigins))
	h.Register(engine)

	return &Server{
		engine: engine,
		server: &http.Server{
			Addr:         cfg.Address(),
			Handler:      engine,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		cfg: cfg,
		log: log,
	}
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", logger.String("address", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server", logger.Duration("timeout", s.cfg.ShutdownTimeout))
	//nolint:contextcheck // the parent context is already cancelled
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.log.Info("HTTP server stopped gracefully")
	return nil
}
