package gateway

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/dynproxy/internal/config"
	"github.com/vyrodovalexey/dynproxy/internal/observability"
)

func TestListener_StartStop(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	l := NewListener("test", config.ListenerConfig{Address: "127.0.0.1:0"}, handler,
		WithListenerLogger(observability.NopLogger()))

	assert.Equal(t, "test", l.Name())
	assert.Equal(t, "127.0.0.1:0", l.Address())
	assert.Nil(t, l.Addr())
	assert.False(t, l.IsRunning())

	require.NoError(t, l.Start(context.Background()))
	assert.True(t, l.IsRunning())
	require.NotNil(t, l.Addr())
	assert.NotEqual(t, "127.0.0.1:0", l.Addr().String())

	err := l.Start(context.Background())
	assert.ErrorIs(t, err, ErrListenerRunning)

	resp, err := http.Get("http://" + l.Addr().String()) //nolint:noctx // test
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	require.NoError(t, l.Stop(context.Background()))
	assert.False(t, l.IsRunning())

	// Stopping twice is a no-op.
	require.NoError(t, l.Stop(context.Background()))
}

func TestListener_StartInvalidAddress(t *testing.T) {
	t.Parallel()

	l := NewListener("bad", config.ListenerConfig{Address: "256.0.0.1:http-nope"}, http.NotFoundHandler())

	err := l.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen on")
	assert.False(t, l.IsRunning())
}
