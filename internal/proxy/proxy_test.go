package proxy

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/dynproxy/internal/observability"
)

// roundTripperFunc lets a test observe outbound requests without a network.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// capturingTransport records the last outbound request and answers 200.
type capturingTransport struct {
	mu   sync.Mutex
	req  *http.Request
	body string
}

func (c *capturingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	var body string
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		body = string(b)
	}

	c.mu.Lock()
	c.req = r
	c.body = body
	c.mu.Unlock()

	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       io.NopCloser(strings.NewReader("ok")),
		Request:    r,
	}, nil
}

func (c *capturingTransport) last() (*http.Request, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.req, c.body
}

func upstreamOptions(t *testing.T, rawURL string) *Options {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return &Options{Scheme: u.Scheme, Host: u.Host}
}

func TestNewReverseProxy_InvalidOptions(t *testing.T) {
	t.Parallel()

	p, err := NewReverseProxy(&Options{Host: "localhost"})
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrMissingScheme)

	p, err = NewReverseProxy(nil)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrNilOptions)
}

func TestNewReverseProxy_WithOptions(t *testing.T) {
	t.Parallel()

	logger := observability.NopLogger()
	transport := &http.Transport{}
	modifier := func(*http.Response) error { return nil }

	p, err := NewReverseProxy(&Options{Scheme: "http", Host: "localhost"},
		WithProxyLogger(logger),
		WithTransport(transport),
		WithFlushInterval(100*time.Millisecond),
		withModifyResponse(modifier),
	)
	require.NoError(t, err)

	assert.Equal(t, logger, p.logger)
	assert.Equal(t, transport, p.transport)
	assert.Equal(t, 100*time.Millisecond, p.flushInterval)
	assert.Equal(t, 100*time.Millisecond, p.forwarder.FlushInterval)
	assert.Equal(t, 100*time.Millisecond, p.FlushInterval())
	assert.NotNil(t, p.modifyResponse)
	assert.NotNil(t, p.errorHandler)
	assert.NotNil(t, p.Resolver())
}

func TestNewReverseProxy_DefaultFlushInterval(t *testing.T) {
	t.Parallel()

	p, err := NewReverseProxy(&Options{Scheme: "http", Host: "localhost"})
	require.NoError(t, err)

	assert.Equal(t, time.Duration(-1), p.FlushInterval())
	assert.Equal(t, time.Duration(-1), p.forwarder.FlushInterval)
}

func TestReverseProxy_ServeHTTP_Static(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		received *http.Request
		body     string
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = r.Clone(r.Context())
		body = string(b)
		mu.Unlock()

		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "created")
	}))
	defer upstream.Close()

	opts := upstreamOptions(t, upstream.URL)
	opts.PathBase = "/api"
	opts.AppendQuery = []QueryParam{{Key: "source", Value: "proxy"}}
	opts.PrepareRequest = ForwardedHost

	p, err := NewReverseProxy(opts)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "http://front.example.com:8080/items?id=3", strings.NewReader("payload"))
	req.Header.Set("X-Custom", "value")
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	rec := httptest.NewRecorder()

	p.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "yes", rec.Header().Get("X-Upstream"))
	assert.Equal(t, "created", rec.Body.String())

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, received)
	assert.Equal(t, http.MethodPost, received.Method)
	assert.Equal(t, "/api/items", received.URL.Path)
	assert.Equal(t, "id=3&source=proxy", received.URL.RawQuery)
	assert.Equal(t, "payload", body)
	assert.Equal(t, opts.Host, received.Host)
	assert.Equal(t, "value", received.Header.Get("X-Custom"))
	assert.Equal(t, []string{"front.example.com"}, received.Header.Values(HeaderXForwardedHost))
	assert.Equal(t, []string{"10.0.0.1"}, received.Header.Values("X-Forwarded-For"))
}

func TestReverseProxy_ServeHTTP_Dynamic(t *testing.T) {
	t.Parallel()

	transport := &capturingTransport{}
	p, err := NewReverseProxy(&Options{
		Scheme:                  "http",
		Host:                    "localhost:13579",
		UseDynamicSchemeAndHost: true,
		AppendQuery:             []QueryParam{{Key: "k", Value: "v"}},
	}, WithTransport(transport))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/https/example.com/a/b?x=1", strings.NewReader("data"))
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	p.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	out, body := transport.last()
	require.NotNil(t, out)
	assert.Equal(t, "https://example.com:443/a/b?x=1&k=v", out.URL.String())
	assert.Equal(t, http.MethodPut, out.Method)
	assert.Equal(t, "data", body)
	assert.Equal(t, "Bearer token", out.Header.Get("Authorization"))
	assert.Empty(t, out.Header.Values(HeaderXForwardedHost))
	assert.Empty(t, out.Header.Values("X-Forwarded-For"))
}

func TestReverseProxy_ServeHTTP_StaticEncodedSlash(t *testing.T) {
	t.Parallel()

	var (
		mu         sync.Mutex
		requestURI string
		path       string
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requestURI = r.RequestURI
		path = r.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	p, err := NewReverseProxy(upstreamOptions(t, upstream.URL))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/a%2Fb", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/files/a%2Fb", requestURI)
	assert.Equal(t, "/files/a/b", path)
}

func TestReverseProxy_ServeHTTP_DynamicEncodedSlash(t *testing.T) {
	t.Parallel()

	transport := &capturingTransport{}
	p, err := NewReverseProxy(&Options{
		Scheme:                  "http",
		Host:                    "localhost:13579",
		UseDynamicSchemeAndHost: true,
	}, WithTransport(transport))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/http/host/a%2Fb", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	out, _ := transport.last()
	require.NotNil(t, out)
	assert.Equal(t, "host:80", out.URL.Host)
	assert.Equal(t, "/a%2Fb", out.URL.EscapedPath())
	assert.Equal(t, "http://host:80/a%2Fb", out.URL.String())
}

func TestReverseProxy_ServeHTTP_ShortPathFallsBackToStatic(t *testing.T) {
	t.Parallel()

	transport := &capturingTransport{}
	p, err := NewReverseProxy(&Options{
		Scheme:                  "http",
		Host:                    "localhost:13579",
		UseDynamicSchemeAndHost: true,
	}, WithTransport(transport))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/foo", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	out, _ := transport.last()
	require.NotNil(t, out)
	assert.Equal(t, "http://localhost:13579/foo", out.URL.String())
}

func TestReverseProxy_ServeHTTP_RelaysErrorStatus(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":"maintenance"}`)
	}))
	defer upstream.Close()

	p, err := NewReverseProxy(upstreamOptions(t, upstream.URL))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"maintenance"}`, rec.Body.String())
}

func TestReverseProxy_ServeHTTP_UpstreamUnreachable(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.NotFoundHandler())
	opts := upstreamOptions(t, upstream.URL)
	upstream.Close()

	p, err := NewReverseProxy(opts)
	require.NoError(t, err)

	counter := getProxyMetrics().errorsTotal.WithLabelValues(ModeStatic, errorTypeConnectionRefused)
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.GreaterOrEqual(t, testutil.ToFloat64(counter)-before, 1.0)
}

func TestReverseProxy_ServeHTTP_CustomErrorHandler(t *testing.T) {
	t.Parallel()

	transportErr := errors.New("boom")
	var handled error

	p, err := NewReverseProxy(&Options{Scheme: "http", Host: "localhost"},
		WithTransport(roundTripperFunc(func(*http.Request) (*http.Response, error) {
			return nil, transportErr
		})),
		withErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			handled = err
			w.WriteHeader(http.StatusTeapot)
		}),
	)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.ErrorIs(t, handled, transportErr)
}

func TestReverseProxy_ServeHTTP_NilRequest(t *testing.T) {
	t.Parallel()

	p, err := NewReverseProxy(&Options{Scheme: "http", Host: "localhost"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReverseProxy_ServeHTTP_RecordsResolutionMode(t *testing.T) {
	t.Parallel()

	p, err := NewReverseProxy(&Options{
		Scheme:                  "http",
		Host:                    "localhost",
		UseDynamicSchemeAndHost: true,
	}, WithTransport(&capturingTransport{}))
	require.NoError(t, err)

	dynamic := getProxyMetrics().resolutionsTotal.WithLabelValues(ModeDynamic)
	before := testutil.ToFloat64(dynamic)

	p.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/http/example.com/x", nil))

	assert.GreaterOrEqual(t, testutil.ToFloat64(dynamic)-before, 1.0)
}

func TestReverseProxy_DefaultErrorHandler_UnresolvedRequest(t *testing.T) {
	t.Parallel()

	p, err := NewReverseProxy(&Options{Scheme: "http", Host: "localhost"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	p.defaultErrorHandler(rec, httptest.NewRequest(http.MethodGet, "/", nil), ErrNilRequest)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
