package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// GracefulShutdown serves until its context ends, then runs the shutdown
// hooks and drains the server
type GracefulShutdown struct {
	server        *Server
	shutdownHooks []ShutdownHook
	timeout       time.Duration
	logger        Logger
	mu            sync.Mutex
}

// ShutdownHook is a function called during graceful shutdown
type ShutdownHook func(ctx context.Context) error

// Logger is the logging interface used for lifecycle messages
type Logger interface {
	Printf(format string, v ...interface{})
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

// ShutdownConfig holds graceful shutdown configuration
type ShutdownConfig struct {
	// Timeout is the maximum time to wait for hooks and in-flight requests
	Timeout time.Duration

	Logger Logger
}

// DefaultShutdownConfig returns default shutdown configuration
func DefaultShutdownConfig() *ShutdownConfig {
	return &ShutdownConfig{
		Timeout: 30 * time.Second,
		Logger:  nopLogger{},
	}
}

// NewGracefulShutdown creates a new graceful shutdown handler
func NewGracefulShutdown(server *Server, config *ShutdownConfig) *GracefulShutdown {
	if config == nil {
		config = DefaultShutdownConfig()
	}
	if config.Logger == nil {
		config.Logger = nopLogger{}
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &GracefulShutdown{
		server:  server,
		timeout: config.Timeout,
		logger:  config.Logger,
	}
}

// RegisterHook registers a shutdown hook. Hooks run in registration order
// before the server is drained.
func (gs *GracefulShutdown) RegisterHook(hook ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.shutdownHooks = append(gs.shutdownHooks, hook)
}

// Run serves until ctx is done or the server fails. A clean shutdown
// returns nil.
func (gs *GracefulShutdown) Run(ctx context.Context) error {
	if err := gs.server.Listen(); err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		gs.logger.Printf("Starting server on %s", gs.server.Addr())
		if err := gs.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		gs.logger.Printf("Shutdown signal received, shutting down gracefully...")
		return gs.shutdown()
	case err := <-errChan:
		return err
	}
}

func (gs *GracefulShutdown) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	gs.mu.Lock()
	hooks := make([]ShutdownHook, len(gs.shutdownHooks))
	copy(hooks, gs.shutdownHooks)
	gs.mu.Unlock()

	for i, hook := range hooks {
		if err := hook(ctx); err != nil {
			gs.logger.Printf("Shutdown hook %d failed: %v", i, err)
		}
	}

	if err := gs.server.Shutdown(ctx); err != nil {
		gs.logger.Printf("Server shutdown error: %v", err)
		return fmt.Errorf("server shutdown error: %w", err)
	}
	gs.logger.Printf("Server shutdown completed successfully")
	return nil
}
