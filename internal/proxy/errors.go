package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Sentinel errors for proxy operations.
var (
	// ErrNilOptions indicates that no options were supplied.
	ErrNilOptions = errors.New("proxy options are nil")

	// ErrMissingScheme indicates that the static upstream scheme is empty.
	ErrMissingScheme = errors.New("options must specify scheme")

	// ErrMissingHost indicates that the static upstream host is empty.
	ErrMissingHost = errors.New("options must specify host")

	// ErrNilRequest indicates that no inbound request was supplied.
	ErrNilRequest = errors.New("request is nil")

	// ErrProxyFailed indicates that the upstream call failed.
	ErrProxyFailed = errors.New("proxy request failed")

	// ErrUpstreamTimeout indicates that the upstream call timed out.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrUpstreamUnavailable indicates that the upstream refused the connection.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Error type labels used in metrics and logs.
const (
	errorTypeCanceled          = "canceled"
	errorTypeTimeout           = "timeout"
	errorTypeConnectionRefused = "connection_refused"
	errorTypeBadGateway        = "bad_gateway"
)

// ProxyError represents a proxy-related error with details.
type ProxyError struct {
	Op      string // Operation that failed
	Target  string // Target URL if applicable
	Message string // Human-readable message
	Cause   error  // Underlying error
}

// Error implements the error interface.
func (e *ProxyError) Error() string {
	msg := fmt.Sprintf("proxy error [%s]", e.Op)
	if e.Target != "" {
		msg += " target=" + e.Target
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ProxyError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ProxyError) Is(target error) bool {
	_, ok := target.(*ProxyError)
	return ok || errors.Is(e.Cause, target)
}

// NewProxyError creates a new ProxyError.
func NewProxyError(op, target, message string, cause error) *ProxyError {
	return &ProxyError{
		Op:      op,
		Target:  target,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigurationError reports an unusable option field.
func NewConfigurationError(field string, cause error) *ProxyError {
	return &ProxyError{
		Op:      "validate_options",
		Message: "invalid " + field,
		Cause:   cause,
	}
}

// NewUpstreamError wraps a transport failure for the given target.
func NewUpstreamError(target string, cause error) *ProxyError {
	sentinel := ErrProxyFailed
	switch classifyError(cause) {
	case errorTypeTimeout:
		sentinel = ErrUpstreamTimeout
	case errorTypeConnectionRefused:
		sentinel = ErrUpstreamUnavailable
	}
	return &ProxyError{
		Op:      "forward",
		Target:  target,
		Message: sentinel.Error(),
		Cause:   errors.Join(sentinel, cause),
	}
}

// IsProxyError checks if an error is a ProxyError.
func IsProxyError(err error) bool {
	var proxyErr *ProxyError
	return errors.As(err, &proxyErr)
}

// IsConfigurationError checks if an error stems from missing options.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrNilOptions) ||
		errors.Is(err, ErrMissingScheme) ||
		errors.Is(err, ErrMissingHost)
}

// classifyError maps a transport error to a bounded metric label.
func classifyError(err error) string {
	if err == nil {
		return errorTypeBadGateway
	}
	if errors.Is(err, context.Canceled) {
		return errorTypeCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errorTypeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errorTypeTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return errorTypeConnectionRefused
	}
	return errorTypeBadGateway
}
