package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIPExtractor determines the client address used for rate limiting
// and access logs. X-Forwarded-For is consulted only when the direct peer
// is a trusted proxy.
type ClientIPExtractor struct {
	trusted []netip.Prefix
}

// NewClientIPExtractor creates an extractor trusting the given CIDRs or
// single addresses. Entries that parse as neither are skipped.
func NewClientIPExtractor(trustedProxies []string) *ClientIPExtractor {
	prefixes := make([]netip.Prefix, 0, len(trustedProxies))
	for _, entry := range trustedProxies {
		if p, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}
	return &ClientIPExtractor{trusted: prefixes}
}

// Extract returns the client IP of r. Without trusted proxies it is the
// RemoteAddr host. Otherwise X-Forwarded-For is walked right to left and
// the first untrusted hop wins.
func (e *ClientIPExtractor) Extract(r *http.Request) string {
	remoteIP := stripPort(r.RemoteAddr)
	if len(e.trusted) == 0 || !e.isTrusted(remoteIP) {
		return remoteIP
	}

	hops := strings.Split(r.Header.Get(HeaderXForwardedFor), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop != "" && !e.isTrusted(hop) {
			return hop
		}
	}
	return remoteIP
}

func (e *ClientIPExtractor) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range e.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// stripPort removes the port from "host:port" or "[v6]:port".
func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

type clientIPExtractorKey struct{}

//nolint:gochecknoglobals // immutable, trusts no proxy
var defaultExtractor = NewClientIPExtractor(nil)

// ContextWithClientIPExtractor returns a copy of ctx carrying e. The
// logging and rate limit middlewares use it for requests served under ctx.
func ContextWithClientIPExtractor(ctx context.Context, e *ClientIPExtractor) context.Context {
	if e == nil {
		return ctx
	}
	return context.WithValue(ctx, clientIPExtractorKey{}, e)
}

// ClientIPExtractorFromContext returns the extractor stored in ctx, or one
// that only trusts RemoteAddr.
func ClientIPExtractorFromContext(ctx context.Context) *ClientIPExtractor {
	if e, ok := ctx.Value(clientIPExtractorKey{}).(*ClientIPExtractor); ok {
		return e
	}
	return defaultExtractor
}
