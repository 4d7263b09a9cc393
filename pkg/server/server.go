package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"mercator-hq/courier/pkg/security/auth"
	"mercator-hq/courier/pkg/telemetry/health"
	"mercator-hq/courier/pkg/telemetry/metrics"
	"mercator-hq/courier/pkg/telemetry/tracing"
)

// Config configures the monitor HTTP server.
type Config struct {
	// ListenAddress is the host:port to listen on (port 0 picks a free port)
	ListenAddress string

	// MetricsPath serves the Prometheus endpoint (default "/metrics")
	MetricsPath string

	// ShutdownTimeout bounds the graceful shutdown (default 10s)
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout bounds reading request headers (default 5s)
	ReadHeaderTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves the collector's registry on Config.MetricsPath.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithHealth mounts the liveness, readiness and version endpoints.
func WithHealth(c *health.Checker, info health.VersionInfo) Option {
	return func(s *Server) {
		s.health = c
		s.version = info
	}
}

// WithAuth requires an API key on every route except liveness and
// readiness.
func WithAuth(k *auth.Keyring) Option {
	return func(s *Server) { s.keyring = k }
}

// WithTracer wraps every request in a server span.
func WithTracer(t *tracing.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server exposes metrics and health of a running monitor.
type Server struct {
	config  Config
	metrics *metrics.Collector
	health  *health.Checker
	version health.VersionInfo
	tracer  *tracing.Tracer
	keyring *auth.Keyring
	logger  *slog.Logger

	httpServer   *http.Server
	listener     net.Listener
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New creates a server. Nothing listens until Listen or Start is called.
func New(cfg Config, opts ...Option) *Server {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}

	s := &Server{config: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	return s
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.metrics != nil {
		mux.Handle(s.config.MetricsPath, s.metrics.Handler())
	}
	if s.health != nil {
		s.health.Register(mux, s.version)
	}

	var handler http.Handler = mux

	if s.keyring != nil {
		handler = auth.NewMiddleware(s.keyring, s.logger, health.LivenessPath, health.ReadinessPath).Handle(handler)
	}
	if s.tracer != nil {
		handler = s.tracer.HTTPMiddleware(handler)
	}

	handler = RequestIDMiddleware(handler)
	handler = LoggingMiddleware(s.logger)(handler)

	// Recovery middleware (outermost)
	handler = RecoveryMiddleware(s.logger)(handler)

	return handler
}

// Listen binds the listen address.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("server is already listening")
	}
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start listens (unless Listen was called) and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if s.Addr() == "" {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	httpServer, ln := s.httpServer, s.listener
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting monitor server", "address", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		httpServer, ln := s.httpServer, s.listener
		s.mu.Unlock()

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		switch {
		case httpServer != nil:
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		case ln != nil:
			_ = ln.Close()
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("monitor server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
