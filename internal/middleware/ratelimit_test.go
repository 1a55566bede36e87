package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/dynproxy/internal/config"
	"github.com/vyrodovalexey/dynproxy/internal/observability"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serveFrom(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_Global(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0.001, 2, false)
	h := RateLimit(rl)(okHandler())

	before := testutil.ToFloat64(getMiddlewareMetrics().rateLimitRejected)

	assert.Equal(t, http.StatusOK, serveFrom(h, "198.51.100.1:1").Code)
	assert.Equal(t, http.StatusOK, serveFrom(h, "198.51.100.2:1").Code)

	rec := serveFrom(h, "198.51.100.3:1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(HeaderRetryAfter))
	assert.JSONEq(t, ErrRateLimitExceeded, rec.Body.String())
	assert.GreaterOrEqual(t, testutil.ToFloat64(getMiddlewareMetrics().rateLimitRejected), before+1)
}

func TestRateLimit_PerClient(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0.001, 1, true)
	h := RateLimit(rl)(okHandler())

	assert.Equal(t, http.StatusOK, serveFrom(h, "198.51.100.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(h, "198.51.100.1:2").Code)
	assert.Equal(t, http.StatusOK, serveFrom(h, "198.51.100.2:1").Code)
	assert.Equal(t, 2, rl.clientCount())
}

func TestRateLimiter_CleanupOldClients(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(10, 10, true)
	rl.Allow("a")
	rl.Allow("b")

	rl.CleanupOldClients(time.Hour)
	assert.Equal(t, 2, rl.clientCount())

	time.Sleep(5 * time.Millisecond)
	rl.CleanupOldClients(time.Millisecond)
	assert.Equal(t, 0, rl.clientCount())
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(10, 10, true, WithClientTTL(time.Minute))
	rl.StartAutoCleanup()

	assert.NotPanics(t, func() {
		rl.Stop()
		rl.Stop()
	})
	rl.StartAutoCleanup()
}

func TestRateLimit_ClientIPExtractor(t *testing.T) {
	t.Parallel()

	trusted := NewClientIPExtractor([]string{"10.0.0.0/8"})
	rl := NewRateLimiter(0.001, 1, true, WithClientIPExtractor(trusted))
	h := RateLimit(rl)(okHandler())

	serve := func(xff string, ctxExtractor *ClientIPExtractor) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.5:4000"
		req.Header.Set(HeaderXForwardedFor, xff)
		req = req.WithContext(ContextWithClientIPExtractor(req.Context(), ctxExtractor))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	// Keyed by the forwarded client even when the context extractor
	// trusts nothing.
	untrusting := NewClientIPExtractor(nil)
	assert.Equal(t, http.StatusOK, serve("198.51.100.1", untrusting))
	assert.Equal(t, http.StatusOK, serve("198.51.100.2", untrusting))
	assert.Equal(t, http.StatusTooManyRequests, serve("198.51.100.1", untrusting))
	assert.Equal(t, 2, rl.clientCount())
}

func TestRateLimit_ContextExtractor(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0.001, 1, true)
	h := RateLimit(rl)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:4000"
	req.Header.Set(HeaderXForwardedFor, "198.51.100.1")
	trusted := NewClientIPExtractor([]string{"10.0.0.0/8"})
	h.ServeHTTP(httptest.NewRecorder(), req.WithContext(ContextWithClientIPExtractor(req.Context(), trusted)))

	rl.mu.Lock()
	_, ok := rl.clients["198.51.100.1"]
	rl.mu.Unlock()
	assert.True(t, ok)
}

func TestRateLimitFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		mw, rl := RateLimitFromConfig(&config.RateLimitConfig{}, observability.NopLogger())
		assert.Nil(t, rl)
		assert.Equal(t, http.StatusOK, serveFrom(mw(okHandler()), "198.51.100.1:1").Code)

		mw, rl = RateLimitFromConfig(nil, observability.NopLogger())
		assert.Nil(t, rl)
		assert.NotNil(t, mw)
	})

	t.Run("enabled", func(t *testing.T) {
		t.Parallel()

		mw, rl := RateLimitFromConfig(&config.RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 0.001,
			Burst:             1,
			PerClient:         true,
			ClientTTL:         config.Duration(time.Minute),
		}, observability.NopLogger())
		require.NotNil(t, rl)
		t.Cleanup(rl.Stop)

		assert.Equal(t, time.Minute, rl.clientTTL)

		h := mw(okHandler())
		assert.Equal(t, http.StatusOK, serveFrom(h, "198.51.100.1:1").Code)
		assert.Equal(t, http.StatusTooManyRequests, serveFrom(h, "198.51.100.1:1").Code)
	})
}
