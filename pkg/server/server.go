package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/junki-kanda/AutGuardRails/pkg/config"
	"github.com/junki-kanda/AutGuardRails/pkg/event"
	"github.com/junki-kanda/AutGuardRails/pkg/guardrail"
	"github.com/junki-kanda/AutGuardRails/pkg/telemetry/health"
	"github.com/junki-kanda/AutGuardRails/pkg/telemetry/metrics"
)

// Guardrail is the controller surface the HTTP layer drives.
type Guardrail interface {
	Evaluate(ctx context.Context, ev *event.CostEvent) (*guardrail.Decision, error)
	ResolveApproval(ctx context.Context, req guardrail.ResolveRequest) (*guardrail.Resolution, error)
}

// Options carries the optional collaborators of a server.
type Options struct {
	// Checker serves the readiness probe. Nil gets a checker with no
	// component checks, so /readyz reports ready unconditionally.
	Checker *health.Checker

	// Collector records request metrics and serves the metrics endpoint.
	// Nil disables both.
	Collector *metrics.Collector

	// MetricsPath is where the Prometheus handler mounts.
	// Defaults to config.DefaultPrometheusPath.
	MetricsPath string

	// Version, Commit, and BuildTime feed the /version endpoint.
	Version   string
	Commit    string
	BuildTime string
}

// Server is the HTTP server of the guardrails controller.
type Server struct {
	config       *config.ServerConfig
	controller   Guardrail
	checker      *health.Checker
	collector    *metrics.Collector
	metricsPath  string
	version      string
	commit       string
	buildTime    string
	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a server around a controller.
func NewServer(cfg *config.ServerConfig, controller Guardrail, opts Options) *Server {
	if opts.Checker == nil {
		opts.Checker = health.New(0)
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = config.DefaultPrometheusPath
	}

	return &Server{
		config:      cfg,
		controller:  controller,
		checker:     opts.Checker,
		collector:   opts.Collector,
		metricsPath: opts.MetricsPath,
		version:     opts.Version,
		commit:      opts.Commit,
		buildTime:   opts.BuildTime,
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	handler := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        handler,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting guardrails server",
			"address", s.config.ListenAddress,
			"metrics_path", s.metricsPath,
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server. In-flight requests get
// ShutdownTimeout to finish before their connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		slog.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("guardrails server stopped")
	})

	return shutdownErr
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/events", NewEventsHandler(s.controller, s.collector))
	mux.Handle("/approve", NewApproveHandler(s.controller, s.collector))

	s.checker.RegisterRoutes(mux, s.version, s.commit, s.buildTime)
	// /health is the short alias probes and humans both reach for.
	mux.HandleFunc("/health", s.checker.LivenessHandler())

	if s.collector != nil {
		mux.Handle(s.metricsPath, s.collector.Handler())
	}

	var handler http.Handler = mux

	handler = MetricsMiddleware(s.collector,
		"/events", "/approve", "/health", "/healthz", "/readyz", "/version", s.metricsPath,
	)(handler)
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(handler)

	return handler
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler with the full middleware
// chain, for tests and for embedding the surface elsewhere.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}
