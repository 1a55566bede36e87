package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/dynproxy/internal/observability"
)

func TestLogging(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := observability.NewLoggerWithWriter(observability.LogConfig{Level: "info"}, &buf)
	require.NoError(t, err)

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("queued"))
	}), RequestIDWithGenerator(func() string { return "req-7" }), Logging(logger))

	req := httptest.NewRequest(http.MethodPost, "/http/example.com/jobs?x=1", nil)
	req.RemoteAddr = "203.0.113.7:5000"
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	entry := map[string]any{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))

	assert.Equal(t, "http request", entry["message"])
	assert.Equal(t, http.MethodPost, entry["method"])
	assert.Equal(t, "/http/example.com/jobs", entry["path"])
	assert.Equal(t, "x=1", entry["query"])
	assert.EqualValues(t, http.StatusAccepted, entry["status"])
	assert.EqualValues(t, len("queued"), entry["size"])
	assert.Equal(t, "203.0.113.7", entry["client_ip"])
	assert.Equal(t, "test-agent", entry["user_agent"])
	assert.Equal(t, "req-7", entry["request_id"])
	assert.Equal(t, false, entry["upgraded"])
	assert.Contains(t, entry, "duration")
}

func TestLogging_ClientIPFromContextExtractor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := observability.NewLoggerWithWriter(observability.LogConfig{Level: "info"}, &buf)
	require.NoError(t, err)

	h := Logging(logger)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:4000"
	req.Header.Set(HeaderXForwardedFor, "198.51.100.9")
	trusted := NewClientIPExtractor([]string{"10.0.0.0/8"})
	req = req.WithContext(ContextWithClientIPExtractor(req.Context(), trusted))
	h.ServeHTTP(httptest.NewRecorder(), req)

	entry := map[string]any{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "198.51.100.9", entry["client_ip"])
}
