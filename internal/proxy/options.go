package proxy

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// HeaderXForwardedHost is the header appended by ForwardedHost.
const HeaderXForwardedHost = "X-Forwarded-Host"

// QueryParam is a single key/value pair appended to every forwarded
// query string.
type QueryParam struct {
	Key   string
	Value string
}

// PrepareRequestFunc mutates the outbound headers right before the request
// is dispatched upstream. in is the original inbound request and must be
// treated as read-only.
type PrepareRequestFunc func(in *http.Request, out http.Header)

// Options describes where and how requests are forwarded. A value is built
// once at startup and shared read-only by every request.
type Options struct {
	// Scheme is the static upstream scheme ("http" or "https").
	Scheme string

	// Host is the static upstream authority, "name[:port]".
	Host string

	// PathBase is prefixed to every forwarded path.
	PathBase string

	// AppendQuery is appended, in order, to every forwarded query string.
	// Parameters already present on the inbound request are kept.
	AppendQuery []QueryParam

	// UseDynamicSchemeAndHost decodes the upstream from the first two path
	// segments, i.e. /https/www.example.com/bar -> https://www.example.com:443/bar.
	UseDynamicSchemeAndHost bool

	// PrepareRequest, when set, runs synchronously before dispatch.
	PrepareRequest PrepareRequestFunc
}

// Validate reports whether the options can serve traffic.
func (o *Options) Validate() error {
	if o == nil {
		return ErrNilOptions
	}
	if o.Scheme == "" {
		return NewConfigurationError("scheme", ErrMissingScheme)
	}
	if o.Host == "" {
		return NewConfigurationError("host", ErrMissingHost)
	}
	return nil
}

// encodeAppendQuery renders AppendQuery as a raw query string.
func (o *Options) encodeAppendQuery() string {
	if len(o.AppendQuery) == 0 {
		return ""
	}

	parts := make([]string, 0, len(o.AppendQuery))
	for _, p := range o.AppendQuery {
		parts = append(parts, url.QueryEscape(p.Key)+"="+url.QueryEscape(p.Value))
	}
	return strings.Join(parts, "&")
}

// ForwardedHost appends an X-Forwarded-Host header carrying the host name
// the caller originally addressed.
func ForwardedHost(in *http.Request, out http.Header) {
	host := in.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		return
	}
	out.Add(HeaderXForwardedHost, host)
}

// ChainPrepareRequest runs each non-nil hook in order.
func ChainPrepareRequest(hooks ...PrepareRequestFunc) PrepareRequestFunc {
	return func(in *http.Request, out http.Header) {
		for _, hook := range hooks {
			if hook != nil {
				hook(in, out)
			}
		}
	}
}
