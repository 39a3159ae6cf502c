package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/me/corun/internal/assistant"
	"github.com/me/corun/internal/config"
	"github.com/me/corun/internal/logging"
)

// Server is the corun HTTP API. It exposes the assistant over JSON.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	validate  *validator.Validate
	assistant *assistant.Service
	clockMode string
}

// Option configures optional Server settings.
type Option func(*Server)

// WithClockMode records the scheduler clock mode reported by /health.
func WithClockMode(mode string) Option {
	return func(s *Server) {
		s.clockMode = mode
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, svc *assistant.Service, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logging.Component(logger, "server"),
		config:    cfg,
		startTime: time.Now(),
		validate:  validator.New(),
		assistant: svc,
		clockMode: config.DefaultConfig().Scheduler.Clock,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down gracefully within the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.config.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(corsMiddleware)

	// Chat frontend
	r.Get("/", s.handleIndex)
	r.Handle("/static/*", staticHandler())

	r.Route("/api/v1", func(r chi.Router) {
		// Discovery
		r.Get("/", s.handleDiscovery)

		// Health
		r.Get("/health", s.handleHealth)

		// Assistant
		r.Post("/ask", s.handleAsk)
	})
}
