// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/good-yellow-bee/warroom/internal/api/health"
	"github.com/good-yellow-bee/warroom/internal/api/live"
	"github.com/good-yellow-bee/warroom/internal/incident"
	"github.com/good-yellow-bee/warroom/internal/room"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address           string
	RateLimitPerSec   float64       // Sustained requests per second per client
	RateLimitBurst    int           // Burst allowance per client
	TrustedProxies    []string      // Proxy IPs/CIDRs whose X-Forwarded-For is honoured
	RequestTimeout    time.Duration // Timeout for non-streaming handlers
	StreamMaxDuration time.Duration // Max lifetime for SSE streams
	StreamHeartbeat   time.Duration // Heartbeat interval on SSE streams
	ShutdownTimeout   time.Duration
	Verbose           bool
	Logger            *slog.Logger
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.RateLimitPerSec == 0 {
		c.RateLimitPerSec = 50
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = 100
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.StreamMaxDuration == 0 {
		c.StreamMaxDuration = 30 * time.Minute
	}
	if c.StreamHeartbeat == 0 {
		c.StreamHeartbeat = 15 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	service       *incident.Service
	live          *live.Handler
	healthHandler *health.Handler
	logger        *slog.Logger
	handler       http.Handler
	server        *http.Server
}

// New creates a new API server.
func New(cfg *Config, svc *incident.Service, hub *room.Hub) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if svc == nil {
		return nil, fmt.Errorf("incident service is required")
	}
	if hub == nil {
		return nil, fmt.Errorf("room hub is required")
	}

	cfg.SetDefaults()
	logger := cfg.Logger.With("component", "api")

	s := &Server{
		config:        cfg,
		service:       svc,
		healthHandler: health.NewHandler(),
		logger:        logger,
		live: live.NewHandler(&live.Config{
			Hub:            hub,
			MaxDuration:    cfg.StreamMaxDuration,
			HeartbeatEvery: cfg.StreamHeartbeat,
			Logger:         cfg.Logger,
		}),
	}
	s.handler = s.setupRouter()

	s.server = &http.Server{
		Addr:        cfg.Address,
		Handler:     s.handler,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays 0: websocket and SSE connections are long-lived.
		// Non-streaming routes are bounded by the timeout middleware.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP API listening", "addr", s.config.Address)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP API server")
		s.live.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	if s.healthHandler != nil {
		s.healthHandler.RegisterChecker(c)
	}
}
