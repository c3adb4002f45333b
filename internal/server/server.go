// Package server wires the HTTP front end: chi routes, middleware and the
// run handler.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/studiosync/internal/errors"
	"github.com/3leaps/studiosync/internal/server/handlers"
	"github.com/3leaps/studiosync/internal/server/middleware"
)

// Server is the HTTP server.
type Server struct {
	host string
	port int

	runner     handlers.Runner
	runOptions handlers.RunOptions
	health     bool
	log        *zap.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	router     chi.Router
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithRunner sets the pipeline behind POST /upload and /v1/runs.
func WithRunner(r handlers.Runner) Option {
	return func(s *Server) { s.runner = r }
}

// WithExposeDebug controls whether responses include the run trail.
func WithExposeDebug(expose bool) Option {
	return func(s *Server) { s.runOptions.ExposeDebug = expose }
}

// WithRunTimeout bounds each run.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Server) { s.runOptions.Timeout = d }
}

// WithMaxBodyBytes caps run request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.runOptions.MaxBodyBytes = n }
}

// WithHTTPTimeouts sets the http.Server timeouts. Zero leaves a value unset.
func WithHTTPTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) {
		s.readTimeout, s.writeTimeout, s.idleTimeout = read, write, idle
	}
}

// WithHealth enables or disables the /health routes.
func WithHealth(enabled bool) Option {
	return func(s *Server) { s.health = enabled }
}

// WithLogger sets the request logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New creates a server listening on host:port.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:        host,
		port:        port,
		health:      true,
		log:         zap.NewNop(),
		readTimeout: 30 * time.Second,
		idleTimeout: 120 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.runOptions.Logger = s.log
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(s.log))
	r.Use(middleware.Recovery)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apperrors.RespondWithError(w, r, apperrors.New(http.StatusNotFound, apperrors.CodeNotFound,
			fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path)))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apperrors.RespondWithError(w, r, apperrors.New(http.StatusMethodNotAllowed, apperrors.CodeMethodNotAllowed,
			fmt.Sprintf("method %s not allowed for %s", r.Method, r.URL.Path)))
	})

	r.Get("/", handlers.RootHandler)
	r.Get("/version", handlers.VersionHandler)
	if s.health {
		r.Get("/health", handlers.HealthHandler)
		r.Get("/health/live", handlers.LivenessHandler)
		r.Get("/health/ready", handlers.ReadinessHandler)
		r.Get("/health/startup", handlers.StartupHandler)
	}

	run := handlers.NewRunHandler(s.runner, s.runOptions)
	r.Method(http.MethodPost, "/upload", run)
	r.Method(http.MethodPost, "/v1/runs", run)
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Start listens and serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
	}
	s.log.Info("server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight runs until
// ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
