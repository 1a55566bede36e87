package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/dynproxy/internal/config"
	"github.com/vyrodovalexey/dynproxy/internal/health"
	"github.com/vyrodovalexey/dynproxy/internal/middleware"
	"github.com/vyrodovalexey/dynproxy/internal/observability"
)

// DefaultShutdownTimeout bounds Stop when ctx carries no deadline.
const DefaultShutdownTimeout = 30 * time.Second

// State represents the gateway state.
type State int32

const (
	// StateStopped indicates the gateway is stopped.
	StateStopped State = iota
	// StateStarting indicates the gateway is starting.
	StateStarting
	// StateRunning indicates the gateway is running.
	StateRunning
	// StateStopping indicates the gateway is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Gateway serves the reverse proxy and the admin endpoints.
type Gateway struct {
	logger       observability.Logger
	transport    http.RoundTripper
	middlewares  []middleware.Middleware
	adminHandler http.Handler

	current   atomic.Pointer[snapshot]
	state     atomic.Int32
	startTime time.Time
	mu        sync.Mutex

	listener *Listener
	admin    *Listener

	shutdownTimeout time.Duration
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the logger for the gateway.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithTransport sets the outbound transport shared by every snapshot.
func WithTransport(transport http.RoundTripper) Option {
	return func(g *Gateway) {
		g.transport = transport
	}
}

// WithMiddlewares wraps the proxy in mws, the first being outermost.
// They survive reloads.
func WithMiddlewares(mws ...middleware.Middleware) Option {
	return func(g *Gateway) {
		g.middlewares = append(g.middlewares, mws...)
	}
}

// WithAdminHandler sets the handler served on the admin listener.
func WithAdminHandler(handler http.Handler) Option {
	return func(g *Gateway) {
		g.adminHandler = handler
	}
}

// WithShutdownTimeout sets the shutdown timeout.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		g.shutdownTimeout = timeout
	}
}

// New creates a gateway for cfg. Upstream options are validated here, so
// a configuration the proxy cannot serve never reaches Start.
func New(cfg *config.ProxyConfig, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	g := &Gateway{
		logger:          observability.NopLogger(),
		shutdownTimeout: DefaultShutdownTimeout,
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.transport == nil {
		g.transport = NewTransport(cfg.Spec.Transport)
	}
	if d := cfg.Spec.Listener.ShutdownTimeout.Duration(); d > 0 {
		g.shutdownTimeout = d
	}

	snap, err := buildSnapshot(cfg, g.transport, g.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build proxy: %w", err)
	}
	g.current.Store(snap)
	g.state.Store(int32(StateStopped))

	return g, nil
}

type snapshotContextKey struct{}

// ServeHTTP dispatches to the snapshot pinned by Handler, or to the
// current one.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap, ok := r.Context().Value(snapshotContextKey{}).(*snapshot)
	if !ok {
		snap = g.current.Load()
	}
	snap.handler.ServeHTTP(w, r)
}

// Handler returns the proxy wrapped in the gateway middlewares. A request
// is pinned to the snapshot current on arrival, so a reload never changes
// the settings it is served with.
func (g *Gateway) Handler() http.Handler {
	chain := middleware.Chain(g, g.middlewares...)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := g.current.Load()
		ctx := context.WithValue(r.Context(), snapshotContextKey{}, snap)
		ctx = middleware.ContextWithClientIPExtractor(ctx, snap.ipExtractor)
		chain.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start opens the proxy listener and, when both an admin address and an
// admin handler are set, the admin listener.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrGatewayNotStopped
	}

	cfg := g.Config()

	g.logger.Info("starting gateway",
		observability.String("name", cfg.Metadata.Name),
	)

	g.listener = NewListener("proxy", cfg.Spec.Listener, g.Handler(), WithListenerLogger(g.logger))
	if err := g.listener.Start(ctx); err != nil {
		g.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to start listener %s: %w", g.listener.Name(), err)
	}

	g.admin = nil
	if cfg.Spec.Admin.Address != "" && g.adminHandler != nil {
		admin := NewListener("admin", config.ListenerConfig{
			Address:           cfg.Spec.Admin.Address,
			ReadHeaderTimeout: cfg.Spec.Listener.ReadHeaderTimeout,
			IdleTimeout:       cfg.Spec.Listener.IdleTimeout,
		}, g.adminHandler, WithListenerLogger(g.logger))

		if err := admin.Start(ctx); err != nil {
			_ = g.listener.Stop(ctx)
			g.state.Store(int32(StateStopped))
			return fmt.Errorf("failed to start listener %s: %w", admin.Name(), err)
		}
		g.admin = admin
	}

	g.startTime = time.Now()
	g.state.Store(int32(StateRunning))

	g.logger.Info("gateway started",
		observability.String("name", cfg.Metadata.Name),
		observability.String("address", g.listener.Addr().String()),
	)

	return nil
}

// Stop stops the listeners gracefully and releases the current snapshot.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrGatewayNotRunning
	}

	g.logger.Info("stopping gateway",
		observability.String("name", g.Config().Metadata.Name),
	)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.shutdownTimeout)
		defer cancel()
	}

	var firstErr error
	for _, l := range []*Listener{g.listener, g.admin} {
		if l == nil {
			continue
		}
		if err := l.Stop(ctx); err != nil {
			g.logger.Error("failed to stop listener",
				observability.String("name", l.Name()),
				observability.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	g.current.Load().release()
	g.state.Store(int32(StateStopped))

	g.logger.Info("gateway stopped")

	return firstErr
}

// Reload validates cfg, builds a new snapshot and swaps it in. On error
// the running snapshot is kept. Listener, admin, transport, observability
// and development settings only change on restart.
func (g *Gateway) Reload(cfg *config.ProxyConfig) error {
	if cfg == nil {
		return ErrNilConfig
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("reloading gateway configuration",
		observability.String("name", cfg.Metadata.Name),
	)

	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	next, err := buildSnapshot(cfg, g.transport, g.logger)
	if err != nil {
		return fmt.Errorf("failed to build proxy: %w", err)
	}

	prev := g.current.Swap(next)
	prev.release()

	for _, section := range restartRequired(prev.config, cfg) {
		g.logger.Warn("configuration change requires a restart",
			observability.String("section", section),
		)
	}

	g.logger.Info("gateway configuration reloaded",
		observability.String("name", cfg.Metadata.Name),
	)

	return nil
}

// State returns the current gateway state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// IsRunning returns true if the gateway is running.
func (g *Gateway) IsRunning() bool {
	return g.State() == StateRunning
}

// Uptime returns the gateway uptime.
func (g *Gateway) Uptime() time.Duration {
	if g.startTime.IsZero() || !g.IsRunning() {
		return 0
	}
	return time.Since(g.startTime)
}

// Config returns the configuration of the current snapshot.
func (g *Gateway) Config() *config.ProxyConfig {
	return g.current.Load().config
}

// UpstreamInfo describes the upstream currently served.
func (g *Gateway) UpstreamInfo() health.UpstreamInfo {
	return g.current.Load().upstreamInfo()
}

// Addr returns the bound proxy address, or nil when not started.
func (g *Gateway) Addr() net.Addr {
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// AdminAddr returns the bound admin address, or nil when not serving.
func (g *Gateway) AdminAddr() net.Addr {
	if g.admin == nil {
		return nil
	}
	return g.admin.Addr()
}
