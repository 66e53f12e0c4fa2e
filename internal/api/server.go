// Package api exposes the execution engine and run history over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/runlet/internal/events"
	"github.com/mattjoyce/runlet/internal/execute"
	"github.com/mattjoyce/runlet/internal/history"
)

//go:generate mockgen -destination=mocks/mock_deps.go -package=mocks github.com/mattjoyce/runlet/internal/api RunStore,Executor

// RunStore is the slice of the history store the server needs.
type RunStore interface {
	Record(ctx context.Context, run *history.Run) (string, error)
	Get(ctx context.Context, id string) (*history.Run, error)
	List(ctx context.Context, limit int) ([]*history.Run, error)
}

// Executor runs one command to completion.
type Executor interface {
	Run(cmd execute.Command) (*execute.Result, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the bearer token required on every endpoint except
	// /healthz. Empty disables authentication.
	APIKey string
	// DefaultTimeout applies to requests without timeout_seconds.
	DefaultTimeout time.Duration
}

// Server is the HTTP API server.
type Server struct {
	config    Config
	store     RunStore
	executor  Executor
	hub       *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance.
func New(config Config, store RunStore, executor Executor, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		store:     store,
		executor:  executor,
		hub:       hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking until ctx is cancelled).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// No write timeout: run execution and SSE streams are long-lived.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	// Protected API.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/v1/runs", s.handleCreateRun)
		r.Get("/v1/runs", s.handleListRuns)
		r.Get("/v1/runs/{runID}", s.handleGetRun)
		r.Get("/v1/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authMiddleware validates the Authorization: Bearer header against the
// configured API key using a constant-time compare.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key, err := extractBearer(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.config.APIKey)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractBearer extracts the token from an Authorization: Bearer header.
func extractBearer(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", fmt.Errorf("invalid Authorization header format")
	}
	key := strings.TrimSpace(auth[len(prefix):])
	if key == "" {
		return "", fmt.Errorf("missing API key")
	}
	return key, nil
}

// respondJSON is a helper to write JSON responses.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
