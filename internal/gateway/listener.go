package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/vyrodovalexey/dynproxy/internal/config"
	"github.com/vyrodovalexey/dynproxy/internal/observability"
)

// Listener represents an HTTP listener.
type Listener struct {
	name    string
	config  config.ListenerConfig
	server  *http.Server
	handler http.Handler
	logger  observability.Logger
	running atomic.Bool
	mu      sync.RWMutex
	boundTo net.Addr
}

// ListenerOption is a functional option for configuring a listener.
type ListenerOption func(*Listener)

// WithListenerLogger sets the logger for the listener.
func WithListenerLogger(logger observability.Logger) ListenerOption {
	return func(l *Listener) {
		l.logger = logger
	}
}

// NewListener creates a new listener. Zero timeouts in cfg leave the
// corresponding http.Server limit off.
func NewListener(
	name string,
	cfg config.ListenerConfig,
	handler http.Handler,
	opts ...ListenerOption,
) *Listener {
	l := &Listener{
		name:    name,
		config:  cfg,
		handler: handler,
		logger:  observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Name returns the listener name.
func (l *Listener) Name() string {
	return l.name
}

// Address returns the configured listen address.
func (l *Listener) Address() string {
	return l.config.Address
}

// Addr returns the bound address, or nil before Start. It differs from
// Address when the configured port is 0.
func (l *Listener) Addr() net.Addr {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.boundTo
}

// Start binds the address and serves in the background. Bind errors are
// returned synchronously.
func (l *Listener) Start(ctx context.Context) error {
	if l.running.Load() {
		return fmt.Errorf("%w: %s", ErrListenerRunning, l.name)
	}

	server := &http.Server{
		Addr:              l.config.Address,
		Handler:           l.handler,
		ReadTimeout:       l.config.ReadTimeout.Duration(),
		ReadHeaderTimeout: l.config.ReadHeaderTimeout.Duration(),
		WriteTimeout:      l.config.WriteTimeout.Duration(),
		IdleTimeout:       l.config.IdleTimeout.Duration(),
		MaxHeaderBytes:    l.config.MaxHeaderBytes,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.config.Address, err)
	}

	l.mu.Lock()
	l.server = server
	l.boundTo = ln.Addr()
	l.mu.Unlock()

	l.running.Store(true)

	l.logger.Info("listener started",
		observability.String("name", l.name),
		observability.String("address", ln.Addr().String()),
	)

	go l.serve(server, ln)

	return nil
}

// serve runs until the server is shut down.
func (l *Listener) serve(server *http.Server, ln net.Listener) {
	err := server.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.logger.Error("listener error",
			observability.String("name", l.name),
			observability.Error(err),
		)
	}

	l.running.Store(false)
}

// Stop stops the listener gracefully, waiting for in-flight requests
// until ctx is done. Hijacked connections such as WebSockets are not
// waited for.
func (l *Listener) Stop(ctx context.Context) error {
	if !l.running.Load() {
		return nil
	}

	l.logger.Info("stopping listener",
		observability.String("name", l.name),
	)

	l.mu.RLock()
	server := l.server
	l.mu.RUnlock()

	if err := server.Shutdown(ctx); err != nil {
		if closeErr := server.Close(); closeErr != nil {
			return fmt.Errorf("failed to close listener: %w", closeErr)
		}
		return fmt.Errorf("failed to shutdown listener gracefully: %w", err)
	}

	l.running.Store(false)

	l.logger.Info("listener stopped",
		observability.String("name", l.name),
	)

	return nil
}

// IsRunning returns true if the listener is running.
func (l *Listener) IsRunning() bool {
	return l.running.Load()
}
