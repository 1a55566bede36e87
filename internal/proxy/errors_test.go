package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestProxyError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *ProxyError
		expected string
	}{
		{
			name:     "basic",
			err:      NewProxyError("forward", "", "failed", nil),
			expected: "proxy error [forward]: failed",
		},
		{
			name:     "with target and cause",
			err:      NewProxyError("forward", "http://a:80/", "failed", errors.New("boom")),
			expected: "proxy error [forward] target=http://a:80/: failed: boom",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestProxyError_IsAndUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("root")
	err := fmt.Errorf("wrapped: %w", NewProxyError("forward", "", "failed", cause))

	assert.True(t, IsProxyError(err))
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, &ProxyError{})
	assert.False(t, IsProxyError(cause))
}

func TestNewConfigurationError(t *testing.T) {
	t.Parallel()

	err := NewConfigurationError("host", ErrMissingHost)

	assert.ErrorIs(t, err, ErrMissingHost)
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "invalid host")
	assert.False(t, IsConfigurationError(ErrProxyFailed))
}

func TestNewUpstreamError(t *testing.T) {
	t.Parallel()

	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}

	tests := []struct {
		name     string
		cause    error
		sentinel error
	}{
		{name: "refused", cause: refused, sentinel: ErrUpstreamUnavailable},
		{name: "deadline", cause: context.DeadlineExceeded, sentinel: ErrUpstreamTimeout},
		{name: "other", cause: errors.New("eof"), sentinel: ErrProxyFailed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := NewUpstreamError("http://a:80/", tt.cause)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.ErrorIs(t, err, tt.cause)
			assert.Contains(t, err.Error(), "target=http://a:80/")
		})
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}

	assert.Equal(t, errorTypeBadGateway, classifyError(nil))
	assert.Equal(t, errorTypeCanceled, classifyError(fmt.Errorf("x: %w", context.Canceled)))
	assert.Equal(t, errorTypeTimeout, classifyError(context.DeadlineExceeded))
	assert.Equal(t, errorTypeTimeout, classifyError(timeoutError{}))
	assert.Equal(t, errorTypeConnectionRefused, classifyError(refused))
	assert.Equal(t, errorTypeBadGateway, classifyError(errors.New("eof")))
}
