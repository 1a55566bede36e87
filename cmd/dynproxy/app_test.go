package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/dynproxy/internal/config"
	"github.com/vyrodovalexey/dynproxy/internal/health"
	"github.com/vyrodovalexey/dynproxy/internal/middleware"
	"github.com/vyrodovalexey/dynproxy/internal/observability"
	"github.com/vyrodovalexey/dynproxy/internal/proxy"
)

func newUpstream(t *testing.T, name string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, name+" "+r.URL.RequestURI())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func appConfig(t *testing.T, upstream *httptest.Server) *config.ProxyConfig {
	t.Helper()

	u, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Spec.Listener.Address = "127.0.0.1:0"
	cfg.Spec.Admin.Address = "localhost:0"
	cfg.Spec.Observability.Metrics.Enabled = true
	cfg.Spec.Upstream.Scheme = u.Scheme
	cfg.Spec.Upstream.Host = u.Host
	return cfg
}

func fetch(t *testing.T, rawURL string) (int, string) {
	t.Helper()

	resp, err := http.Get(rawURL) //nolint:noctx // test helper
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestNewApplication_EndToEnd(t *testing.T) {
	upstream := newUpstream(t, "a")
	cfg := appConfig(t, upstream)
	cfg.Spec.Upstream.UseDynamicSchemeAndHost = true

	app, err := newApplication(cfg, observability.NopLogger())
	require.NoError(t, err)
	require.NoError(t, app.gateway.Start(context.Background()))

	proxyURL := "http://" + app.gateway.Addr().String()
	adminURL := "http://" + app.gateway.AdminAddr().String()

	status, body := fetch(t, proxyURL+"/plain?q=1")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "a /plain?q=1", body)

	// A one-segment path falls back to the static upstream.
	status, body = fetch(t, proxyURL+"/http")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "a /http", body)

	status, body = fetch(t, adminURL+"/ready")
	assert.Equal(t, http.StatusOK, status)

	var ready health.ReadinessResponse
	require.NoError(t, json.Unmarshal([]byte(body), &ready))
	assert.Equal(t, health.StatusHealthy, ready.Status)
	assert.Equal(t, "true", ready.Checks["upstream"].Details["dynamic"])

	status, body = fetch(t, adminURL+config.DefaultMetricsPath)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "dynproxy_requests_total")
	assert.Contains(t, body, "dynproxy_build_info")

	status, _ = fetch(t, adminURL+"/live")
	assert.Equal(t, http.StatusOK, status)

	shutdown(app, nil, observability.NopLogger())
	assert.True(t, app.healthChecker.IsDraining())
	assert.False(t, app.gateway.IsRunning())
}

func TestNewApplication_InvalidUpstream(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Spec.Upstream.Host = "localhost"

	app, err := newApplication(cfg, observability.NopLogger())
	assert.Nil(t, app)
	assert.ErrorIs(t, err, proxy.ErrMissingScheme)
}

func TestNewAdminRouter(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	metrics := observability.NewMetrics("admintest")
	checker := health.NewChecker("test")

	router := newAdminRouter(cfg, metrics, checker)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Metrics are disabled by default.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	cfg.Spec.Observability.Metrics = config.MetricsConfig{Enabled: true, Path: "/prom"}
	router = newAdminRouter(cfg, metrics, checker)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prom", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "admintest_start_time_seconds")
}

func TestBuildMiddlewares(t *testing.T) {
	t.Parallel()

	logger := observability.NopLogger()
	metrics := observability.NewMetrics("mwtest")
	tracer, err := observability.NewTracer(observability.TracerConfig{ServiceName: "test"})
	require.NoError(t, err)

	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	cfg := config.DefaultConfig()
	assert.Len(t, buildMiddlewares(cfg, logger, metrics, tracer), 4)

	cfg.Spec.Observability.Metrics.Enabled = true
	mws := buildMiddlewares(cfg, logger, metrics, tracer)
	assert.Len(t, mws, 5)

	rec := httptest.NewRecorder()
	middleware.Chain(panicking, mws...).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	cfg.Spec.Development = true
	rec = httptest.NewRecorder()
	middleware.Chain(panicking, buildMiddlewares(cfg, logger, metrics, tracer)...).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "panic: boom")
}

func TestTracerConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	tc := tracerConfig(cfg)
	assert.False(t, tc.Enabled)
	assert.Equal(t, config.DefaultServiceName, tc.ServiceName)

	cfg.Spec.Observability.Tracing = config.TracingConfig{
		Enabled:      true,
		SamplingRate: 0.5,
		OTLPEndpoint: "collector:4317",
		ServiceName:  "edge",
		Insecure:     true,
	}
	tc = tracerConfig(cfg)
	assert.Equal(t, observability.TracerConfig{
		ServiceName:  "edge",
		OTLPEndpoint: "collector:4317",
		SamplingRate: 0.5,
		Enabled:      true,
		Insecure:     true,
	}, tc)
}
