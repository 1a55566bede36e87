package proxy

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"

	defaultHTTPPort  = "80"
	defaultHTTPSPort = "443"
)

// Resolution modes, used as metric and log labels.
const (
	ModeStatic  = "static"
	ModeDynamic = "dynamic"
)

// Target is the upstream address resolved for a single request.
type Target struct {
	Scheme string
	Host   string
	Path   string

	// RawPath is the escaped form of Path, e.g. with %2F kept encoded.
	// It is ignored when it is not a valid encoding of Path.
	RawPath  string
	RawQuery string

	// Dynamic is true when scheme and host were decoded from the path.
	Dynamic bool
}

// URL returns the absolute upstream URL. An empty path addresses the root.
func (t *Target) URL() *url.URL {
	path, rawPath := t.Path, t.RawPath
	if path == "" {
		path, rawPath = "/", ""
	}
	return &url.URL{
		Scheme:   t.Scheme,
		Host:     t.Host,
		Path:     path,
		RawPath:  rawPath,
		RawQuery: t.RawQuery,
	}
}

// String returns the absolute upstream URL as a string.
func (t *Target) String() string {
	return t.URL().String()
}

// Mode returns ModeDynamic or ModeStatic.
func (t *Target) Mode() string {
	if t.Dynamic {
		return ModeDynamic
	}
	return ModeStatic
}

// Resolver turns inbound requests into upstream targets. It holds no
// mutable state and is safe for concurrent use.
type Resolver struct {
	opts        *Options
	pathBase    string
	rawPathBase string
	appendQuery string
}

// NewResolver creates a resolver for validated options.
func NewResolver(opts *Options) (*Resolver, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	pathBase := strings.TrimSuffix(opts.PathBase, "/")

	return &Resolver{
		opts:        opts,
		pathBase:    pathBase,
		rawPathBase: (&url.URL{Path: pathBase}).EscapedPath(),
		appendQuery: opts.encodeAppendQuery(),
	}, nil
}

// AppendQuery returns the encoded query string appended to every target.
func (r *Resolver) AppendQuery() string {
	return r.appendQuery
}

// Resolve returns the upstream target for r. Dynamic resolution is tried
// first when enabled; a path too short to carry scheme and host falls back
// to the static upstream. Paths are split in their escaped form, so an
// encoded slash never acts as a segment boundary and reaches the upstream
// still encoded.
func (r *Resolver) Resolve(req *http.Request) (*Target, error) {
	if req == nil || req.URL == nil {
		return nil, ErrNilRequest
	}

	query := joinQuery(req.URL.RawQuery, r.appendQuery)
	rawPath := req.URL.EscapedPath()

	if target, ok := r.resolveDynamic(rawPath, query); ok {
		return target, nil
	}

	return &Target{
		Scheme:   r.opts.Scheme,
		Host:     r.opts.Host,
		Path:     r.pathBase + req.URL.Path,
		RawPath:  r.rawPathBase + rawPath,
		RawQuery: query,
	}, nil
}

// resolveDynamic decodes /<scheme>/<host>/<rest> into a target. rawPath
// is the escaped request path; tokens that do not unescape fall back to
// the static upstream.
func (r *Resolver) resolveDynamic(rawPath, query string) (*Target, bool) {
	if !r.opts.UseDynamicSchemeAndHost {
		return nil, false
	}

	steps, ok := splitPathSteps(rawPath)
	if !ok {
		return nil, false
	}

	scheme, err := url.PathUnescape(steps.scheme)
	if err != nil {
		return nil, false
	}
	host, err := url.PathUnescape(steps.host)
	if err != nil {
		return nil, false
	}

	port := defaultHTTPPort
	if scheme == schemeHTTPS {
		port = defaultHTTPSPort
	}

	var rawRest string
	if steps.hasRest {
		rawRest = "/" + strings.TrimLeft(steps.rest, "/")
	}
	rest, err := url.PathUnescape(rawRest)
	if err != nil {
		return nil, false
	}

	return &Target{
		Scheme:   scheme,
		Host:     net.JoinHostPort(hostname(host), port),
		Path:     r.pathBase + rest,
		RawPath:  r.rawPathBase + rawRest,
		RawQuery: query,
		Dynamic:  true,
	}, true
}

// pathSteps is a request path split into scheme, host and remainder.
type pathSteps struct {
	scheme  string
	host    string
	rest    string
	hasRest bool
}

// splitPathSteps strips one leading slash and splits off the first two
// segments. The remainder is kept verbatim, slashes included.
func splitPathSteps(path string) (pathSteps, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	segments := strings.SplitN(trimmed, "/", 3)
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return pathSteps{}, false
	}

	steps := pathSteps{
		scheme: segments[0],
		host:   segments[1],
	}
	if len(segments) == 3 {
		steps.rest = segments[2]
		steps.hasRest = true
	}
	return steps, true
}

// hostname drops any port from a host token; dynamic targets always use
// the scheme's default port.
func hostname(token string) string {
	u := url.URL{Host: token}
	if h := u.Hostname(); h != "" {
		return h
	}
	return token
}

// joinQuery appends extra to raw without touching either side.
func joinQuery(raw, extra string) string {
	switch {
	case extra == "":
		return raw
	case raw == "":
		return extra
	default:
		return raw + "&" + extra
	}
}
