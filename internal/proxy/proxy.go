package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vyrodovalexey/dynproxy/internal/observability"
)

// forwardedHeaders are stripped from the outbound copy by
// httputil.ReverseProxy when Rewrite is used. Inbound values are put back
// so the proxy only ever adds what PrepareRequest adds.
var forwardedHeaders = []string{
	"Forwarded",
	"X-Forwarded-For",
	"X-Forwarded-Host",
	"X-Forwarded-Proto",
}

type targetContextKey struct{}

// ReverseProxy resolves each request to an upstream target and forwards it.
type ReverseProxy struct {
	options        *Options
	resolver       *Resolver
	logger         observability.Logger
	transport      http.RoundTripper
	errorHandler   func(http.ResponseWriter, *http.Request, error)
	modifyResponse func(*http.Response) error
	flushInterval  time.Duration
	forwarder      *httputil.ReverseProxy
	websocket      *websocketProxy
}

// ProxyOption is a functional option for configuring the proxy.
type ProxyOption func(*ReverseProxy)

// WithProxyLogger sets the logger for the proxy.
func WithProxyLogger(logger observability.Logger) ProxyOption {
	return func(p *ReverseProxy) {
		p.logger = logger
	}
}

// WithTransport sets the transport used for outbound calls.
func WithTransport(transport http.RoundTripper) ProxyOption {
	return func(p *ReverseProxy) {
		p.transport = transport
	}
}

// withErrorHandler replaces the upstream error handler.
func withErrorHandler(handler func(http.ResponseWriter, *http.Request, error)) ProxyOption {
	return func(p *ReverseProxy) {
		p.errorHandler = handler
	}
}

// withModifyResponse sets the response modifier for the proxy.
func withModifyResponse(modifier func(*http.Response) error) ProxyOption {
	return func(p *ReverseProxy) {
		p.modifyResponse = modifier
	}
}

// WithFlushInterval sets the flush interval for streaming responses. A
// negative interval flushes after every write.
func WithFlushInterval(interval time.Duration) ProxyOption {
	return func(p *ReverseProxy) {
		p.flushInterval = interval
	}
}

// NewReverseProxy creates a proxy for opts. Options are validated here so
// a misconfigured proxy never serves a request.
func NewReverseProxy(opts *Options, popts ...ProxyOption) (*ReverseProxy, error) {
	resolver, err := NewResolver(opts)
	if err != nil {
		return nil, err
	}

	p := &ReverseProxy{
		options:       opts,
		resolver:      resolver,
		logger:        observability.NopLogger(),
		flushInterval: -1, // Immediate flush
	}

	for _, opt := range popts {
		opt(p)
	}

	if p.errorHandler == nil {
		p.errorHandler = p.defaultErrorHandler
	}

	p.forwarder = &httputil.ReverseProxy{
		Rewrite:        p.rewrite,
		Transport:      p.transport,
		FlushInterval:  p.flushInterval,
		ErrorHandler:   p.errorHandler,
		ModifyResponse: p.modifyResponse,
	}
	p.websocket = newWebSocketProxy(p.logger, p.transport, opts.PrepareRequest)

	return p, nil
}

// Resolver returns the resolver backing the proxy.
func (p *ReverseProxy) Resolver() *Resolver {
	return p.resolver
}

// FlushInterval returns the flush interval applied to response bodies.
func (p *ReverseProxy) FlushInterval() time.Duration {
	return p.flushInterval
}

// ServeHTTP implements http.Handler.
func (p *ReverseProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r == nil {
		p.logger.Error("rejecting request", observability.Error(ErrNilRequest))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	target, err := p.resolver.Resolve(r)
	if err != nil {
		p.errorHandler(w, r, err)
		return
	}

	metrics := getProxyMetrics()
	mode := target.Mode()
	metrics.resolutionsTotal.WithLabelValues(mode).Inc()

	ctx := context.WithValue(r.Context(), targetContextKey{}, target)
	r = r.WithContext(ctx)

	p.logger.WithContext(ctx).Debug("forwarding request",
		observability.String("method", r.Method),
		observability.String("path", r.URL.Path),
		observability.String("target", target.String()),
		observability.String("mode", mode),
	)

	start := time.Now()
	if websocket.IsWebSocketUpgrade(r) {
		p.forwardWebSocket(w, r, target)
		metrics.websocketSession.WithLabelValues(mode).Observe(time.Since(start).Seconds())
		return
	}

	p.forwarder.ServeHTTP(w, r)
	metrics.upstreamDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}

// rewrite points the outbound request at the resolved target.
func (p *ReverseProxy) rewrite(pr *httputil.ProxyRequest) {
	target := targetFromContext(pr.In.Context())
	if target == nil {
		return
	}

	pr.Out.URL = target.URL()
	pr.Out.Host = ""

	for _, h := range forwardedHeaders {
		if v, ok := pr.In.Header[h]; ok {
			pr.Out.Header[h] = append([]string(nil), v...)
		}
	}

	observability.InjectTraceContext(pr.In.Context(), pr.Out)

	if p.options.PrepareRequest != nil {
		p.options.PrepareRequest(pr.In, pr.Out.Header)
	}
}

// forwardWebSocket relays an upgrade request through the WebSocket proxy.
func (p *ReverseProxy) forwardWebSocket(w http.ResponseWriter, r *http.Request, target *Target) {
	metrics := getProxyMetrics()
	metrics.websocketActive.Inc()
	defer metrics.websocketActive.Dec()

	sent, received, err := p.websocket.proxyWebSocket(w, r, target)
	if err != nil {
		metrics.errorsTotal.WithLabelValues(target.Mode(), classifyError(err)).Inc()
		p.logger.WithContext(r.Context()).Warn("websocket forwarding failed",
			observability.String("target", target.String()),
			observability.Error(err),
		)
		return
	}

	p.logger.WithContext(r.Context()).Debug("websocket connection closed",
		observability.String("target", target.String()),
		observability.Int64("messages_sent", sent),
		observability.Int64("messages_received", received),
	)
}

// defaultErrorHandler maps a failed upstream call to 502 Bad Gateway, the
// same response httputil.ReverseProxy produces on its own.
func (p *ReverseProxy) defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	target := targetFromContext(r.Context())
	if target == nil {
		p.logger.WithContext(r.Context()).Error("request could not be resolved", observability.Error(err))
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	errType := classifyError(err)
	getProxyMetrics().errorsTotal.WithLabelValues(target.Mode(), errType).Inc()

	upstreamErr := NewUpstreamError(target.String(), err)
	logger := p.logger.WithContext(r.Context())
	fields := []observability.Field{
		observability.String("method", r.Method),
		observability.String("path", r.URL.Path),
		observability.String("error_type", errType),
		observability.Error(upstreamErr),
	}
	if errors.Is(err, context.Canceled) {
		logger.Debug("caller went away before upstream responded", fields...)
	} else {
		logger.Error("upstream request failed", fields...)
	}

	w.WriteHeader(http.StatusBadGateway)
}

// targetFromContext returns the target stored by ServeHTTP.
func targetFromContext(ctx context.Context) *Target {
	target, _ := ctx.Value(targetContextKey{}).(*Target)
	return target
}
