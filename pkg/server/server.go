package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"mercator-hq/throttle/pkg/config"
	"mercator-hq/throttle/pkg/limits"
	"mercator-hq/throttle/pkg/limits/ratelimit"
	"mercator-hq/throttle/pkg/security/auth"
	securityTLS "mercator-hq/throttle/pkg/security/tls"
	"mercator-hq/throttle/pkg/telemetry/health"
	"mercator-hq/throttle/pkg/telemetry/logging"
	"mercator-hq/throttle/pkg/telemetry/metrics"
	"mercator-hq/throttle/pkg/telemetry/tracing"
)

// Deps are the components the server exposes. Manager is required; a nil
// Metrics or Health disables the corresponding endpoints.
type Deps struct {
	Manager *limits.Manager
	Metrics *metrics.Collector
	Health  *health.Checker
	Tracer  *tracing.Tracer
	Logger  *logging.Logger

	// ProbeLimiter, if set, guards the health probes.
	ProbeLimiter *ratelimit.Limiter

	// Auth holds the API keys when server.auth is enabled. If nil the keys
	// are read from the config once.
	Auth *auth.APIKeyValidator

	Version   string
	Commit    string
	BuildTime string
}

// Server serves limiter status, acquire requests, metrics and health
// probes.
type Server struct {
	config  *config.Config
	deps    Deps
	manager *limits.Manager
	tracer  *tracing.Tracer
	logger  *logging.Logger
	auth    *auth.APIKeyMiddleware

	httpServer   *http.Server
	listener     net.Listener
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a server for cfg.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Manager == nil {
		return nil, errors.New("server requires a limits manager")
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = tracing.Noop()
	}
	logger := deps.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.FromConfig(cfg.Telemetry.Logging))
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	var authMW *auth.APIKeyMiddleware
	if cfg.Server.Auth.Enabled {
		validator := deps.Auth
		if validator == nil {
			keys, err := auth.FromConfig(cfg.Server.Auth)
			if err != nil {
				return nil, fmt.Errorf("failed to load API keys: %w", err)
			}
			validator = auth.NewAPIKeyValidator(keys)
		}
		authMW = auth.NewAPIKeyMiddleware(validator, cfg.Server.Auth.Header, cfg.Server.Auth.Scheme)
	}

	return &Server{
		config:  cfg,
		deps:    deps,
		manager: deps.Manager,
		tracer:  tracer,
		logger:  logger.With("component", "server"),
		auth:    authMW,
	}, nil
}

// Start binds the listen address and serves until ctx is cancelled or the
// server fails, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	tlsConfig, err := s.tlsConfig(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	ln, err := net.Listen("tcp", s.config.Server.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.ListenAddress, err)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		TLSConfig:    tlsConfig,
	}
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		var err error
		if tlsConfig != nil {
			s.logger.Info("starting server", "address", ln.Addr().String(), "tls", true)
			err = s.httpServer.ServeTLS(ln, "", "")
		} else {
			s.logger.Info("starting server", "address", ln.Addr().String())
			err = s.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// tlsConfig loads the server certificate when TLS is enabled. The
// certificate is reloaded from disk until ctx is done.
func (s *Server) tlsConfig(ctx context.Context) (*tls.Config, error) {
	cfg := s.config.Server.TLS
	if !cfg.Enabled {
		return nil, nil
	}

	reloader := securityTLS.NewCertificateReloader(cfg.CertFile, cfg.KeyFile, cfg.ReloadInterval)
	if err := reloader.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}
	tlsConfig, err := securityTLS.NewServerConfig(cfg, reloader)
	if err != nil {
		return nil, fmt.Errorf("failed to configure TLS: %w", err)
	}
	return tlsConfig, nil
}

// Shutdown gracefully shuts down the server within the configured shutdown
// timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// Handler returns the routed handler with its middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Limiter routes sit behind the API key check when auth is enabled.
	route := func(pattern, name string, h http.HandlerFunc) {
		var handler http.Handler = h
		if s.auth != nil {
			handler = s.auth.Handle(handler)
		}
		mux.Handle(pattern, s.tracer.HTTPMiddleware(name, handler))
	}
	route("GET /limits", "limits.list", s.handleListLimiters)
	route("GET /limits/{name}", "limits.get", s.handleGetLimiter)
	route("POST /limits/{name}/acquire", "limits.acquire", s.handleAcquire)

	if s.deps.Metrics != nil && s.deps.Metrics.Enabled() {
		mux.Handle(s.config.Telemetry.Metrics.Path, s.deps.Metrics.Handler())
	}
	if s.deps.Health != nil {
		health.Register(mux, s.deps.Health, s.config.Telemetry.Health, s.deps.ProbeLimiter,
			s.deps.Version, s.deps.Commit, s.deps.BuildTime)
	}

	var handler http.Handler = mux
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware(handler)
	return handler
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
