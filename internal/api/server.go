// Package api is the agent's HTTP surface: workspace and command operations
// plus health, events, metrics and history endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/testagent/internal/command"
	"github.com/mattjoyce/testagent/internal/events"
	"github.com/mattjoyce/testagent/internal/protocol"
	"github.com/mattjoyce/testagent/internal/workspace"
)

// Executor runs commands inside workspaces.
type Executor interface {
	Submit(t command.Target, line, cwd string) (*command.Process, error)
	Get(t command.Target, cid int) (protocol.Command, error)
	Kill(t command.Target, cid int, signal string) error
}

// HistoryReader serves the finished-command journal.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]protocol.HistoryEntry, error)
}

// Config holds API server configuration
type Config struct {
	Listen          string
	ShutdownTimeout time.Duration
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	store     workspace.Manager
	exec      Executor
	history   HistoryReader
	events    *events.Hub
	metrics   *Metrics
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithEvents serves hub on GET /events.
func WithEvents(hub *events.Hub) Option {
	return func(s *Server) { s.events = hub }
}

// WithMetrics records request metrics and serves GET /metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHistory serves GET /history from h.
func WithHistory(h HistoryReader) Option {
	return func(s *Server) { s.history = h }
}

// New creates a new API server instance
func New(config Config, store workspace.Manager, exec Executor, logger *slog.Logger, opts ...Option) *Server {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:    config,
		store:     store,
		exec:      exec,
		logger:    logger,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/events", s.handleEvents)
	r.Get("/history", s.handleHistory)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Post("/test", s.handleCreateWorkspace)
	r.Route("/test/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetWorkspace)
		r.Post("/keep", s.handleKeepWorkspace)
		r.Post("/delete", s.handleDeleteWorkspace)
		r.Post("/done", s.handleDoneWorkspace)

		r.Post("/file", s.handleUploadFile)
		r.Get("/file", s.handleDownloadFile)

		r.Post("/command", s.handleSubmitCommand)
		r.Get("/command/{cid}", s.handleGetCommand)
		r.Post("/command/{cid}/kill", s.handleKillCommand)
	})

	return r
}

// loggingMiddleware logs HTTP requests and feeds request metrics.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if s.metrics != nil {
			s.metrics.observeRequest(r.Method, route, ww.Status(), elapsed)
		}
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", ww.Status(),
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
