package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// writeSlack is added to the rebalance budget so the response itself still
// fits inside the write deadline.
const writeSlack = 5 * time.Second

// ServerConfig holds configuration for the HTTP server
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// RebalanceBudget is the longest a rebalance request may spend pacing
	// directory writes and waiting for moves to confirm. The write deadline
	// never drops below it.
	RebalanceBudget time.Duration
}

// DefaultServerConfig returns defaults for server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// EffectiveWriteTimeout is the write deadline the server actually applies.
func (c ServerConfig) EffectiveWriteTimeout() time.Duration {
	if c.RebalanceBudget <= 0 {
		return c.WriteTimeout
	}
	return max(c.WriteTimeout, c.RebalanceBudget+writeSlack)
}

// Server serves the wolfbot API. Every request context derives from a base
// context that is cancelled once graceful shutdown gives up, so paced
// directory syncs and move confirmation stop instead of holding the process.
type Server struct {
	server *http.Server
	logger *slog.Logger
	config ServerConfig

	base   context.Context
	cancel context.CancelFunc
}

// NewServer creates a new API server
func NewServer(handler http.Handler, config ServerConfig, logger *slog.Logger) *Server {
	base, cancel := context.WithCancel(context.Background())

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
			Handler:      handler,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.EffectiveWriteTimeout(),
			BaseContext:  func(net.Listener) context.Context { return base },
		},
		logger: logger,
		config: config,
		base:   base,
		cancel: cancel,
	}
}

// Start listens on the configured address until shutdown
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts requests on ln until shutdown
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting HTTP server",
		slog.String("addr", ln.Addr().String()),
		slog.Duration("write_timeout", s.server.WriteTimeout),
		slog.Duration("rebalance_budget", s.config.RebalanceBudget),
	)

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests for up to ShutdownTimeout, then cancels
// whatever is still running.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	defer s.cancel()

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("requests still running at shutdown deadline; cancelling",
			slog.String("error", err.Error()))
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Addr returns the server's configured listen address
func (s *Server) Addr() string {
	return s.server.Addr
}
