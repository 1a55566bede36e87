package gateway

import (
	"net/http"

	"github.com/vyrodovalexey/dynproxy/internal/config"
	"github.com/vyrodovalexey/dynproxy/internal/health"
	"github.com/vyrodovalexey/dynproxy/internal/middleware"
	"github.com/vyrodovalexey/dynproxy/internal/observability"
	"github.com/vyrodovalexey/dynproxy/internal/proxy"
)

// snapshot is everything a request needs from one configuration. It is
// never modified after buildSnapshot returns.
type snapshot struct {
	config      *config.ProxyConfig
	proxy       *proxy.ReverseProxy
	ipExtractor *middleware.ClientIPExtractor
	rateLimiter *middleware.RateLimiter
	handler     http.Handler
}

// buildSnapshot creates the proxy, client IP extractor and rate limiter
// for cfg.
func buildSnapshot(
	cfg *config.ProxyConfig,
	transport http.RoundTripper,
	logger observability.Logger,
) (*snapshot, error) {
	reverseProxy, err := proxy.NewReverseProxy(
		cfg.Spec.Upstream.ProxyOptions(),
		proxy.WithProxyLogger(logger),
		proxy.WithTransport(transport),
		proxy.WithFlushInterval(cfg.Spec.Upstream.ResponseFlushInterval()),
	)
	if err != nil {
		return nil, err
	}

	var trusted []string
	if cfg.Spec.RateLimit != nil {
		trusted = cfg.Spec.RateLimit.TrustedProxies
	}
	ipExtractor := middleware.NewClientIPExtractor(trusted)

	rateLimit, limiter := middleware.RateLimitFromConfig(cfg.Spec.RateLimit, logger,
		middleware.WithClientIPExtractor(ipExtractor),
	)

	return &snapshot{
		config:      cfg,
		proxy:       reverseProxy,
		ipExtractor: ipExtractor,
		rateLimiter: limiter,
		handler:     rateLimit(reverseProxy),
	}, nil
}

// release stops background work owned by the snapshot.
func (s *snapshot) release() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}

// upstreamInfo describes the snapshot's upstream for readiness checks.
func (s *snapshot) upstreamInfo() health.UpstreamInfo {
	u := s.config.Spec.Upstream
	return health.UpstreamInfo{
		Scheme:                  u.Scheme,
		Host:                    u.Host,
		PathBase:                u.PathBase,
		UseDynamicSchemeAndHost: u.UseDynamicSchemeAndHost,
		AppendQuery:             s.proxy.Resolver().AppendQuery(),
	}
}

// restartRequired lists settings in next that differ from prev and only
// take effect on restart.
func restartRequired(prev, next *config.ProxyConfig) []string {
	var changed []string

	if prev.Spec.Listener != next.Spec.Listener {
		changed = append(changed, "listener")
	}
	if prev.Spec.Admin != next.Spec.Admin {
		changed = append(changed, "admin")
	}
	if prev.Spec.Transport != next.Spec.Transport {
		changed = append(changed, "transport")
	}
	if prev.Spec.Observability != next.Spec.Observability {
		changed = append(changed, "observability")
	}
	if prev.Spec.Development != next.Spec.Development {
		changed = append(changed, "development")
	}

	return changed
}
