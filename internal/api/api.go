// Package api provides the HTTP REST API for rules, actions, logs and
// alert history.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/callwatch/internal/alerting"
	"github.com/good-yellow-bee/callwatch/internal/api/health"
	"github.com/good-yellow-bee/callwatch/internal/api/middleware"
	"github.com/good-yellow-bee/callwatch/internal/ingest"
	"github.com/good-yellow-bee/callwatch/internal/storage"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address            string
	APIKey             string // empty disables the X-API-Key check
	RateLimitPerMinute int
	RateLimitBurst     int
	QueryTimeout       time.Duration // timeout for storage-backed calls
	Verbose            bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8000"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 120
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 10 * time.Second
	}
}

// Processor runs one monitoring pass.
type Processor interface {
	RunOnce(ctx context.Context) (count int, ran bool, err error)
}

// Ingester stores provider log batches.
type Ingester interface {
	Ingest(ctx context.Context, b *ingest.Batch) (ingest.Result, error)
}

// Deps are the collaborators the API serves.
type Deps struct {
	Storage   storage.Storage
	Validator alerting.ConfigValidator
	Ingester  Ingester
	Processor Processor
	Checkers  []health.Checker
}

// Server is the HTTP API server.
type Server struct {
	config  *Config
	deps    Deps
	logger  *zap.Logger
	limiter *middleware.RateLimiter
	server  *http.Server
	health  *health.Handler
}

// New creates a new API server.
func New(cfg *Config, deps Deps, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if deps.Validator == nil {
		return nil, fmt.Errorf("action config validator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.SetDefaults()

	s := &Server{
		config:  cfg,
		deps:    deps,
		logger:  logger,
		limiter: middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
		health:  health.NewHandler(deps.Checkers...),
	}

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.setupRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening", zap.String("address", ln.Addr().String()))
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	cleanup := time.NewTicker(5 * time.Minute)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down HTTP API server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return s.server.Shutdown(shutdownCtx)
		case err := <-errChan:
			return err
		case <-cleanup.C:
			s.limiter.Cleanup()
		}
	}
}

// queryContext bounds a storage call.
func (s *Server) queryContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.config.QueryTimeout)
}
