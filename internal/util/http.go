package util

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

// StatusCapturingResponseWriter wraps http.ResponseWriter to track the status
// code and body size. It forwards Flush and Hijack so streamed responses and
// WebSocket upgrades pass through middleware untouched.
type StatusCapturingResponseWriter struct {
	http.ResponseWriter
	StatusCode    int
	Size          int64
	HeaderWritten bool
	Hijacked      bool
}

// NewStatusCapturingResponseWriter creates a new StatusCapturingResponseWriter
// wrapping the provided http.ResponseWriter with a default status of 200 OK.
func NewStatusCapturingResponseWriter(w http.ResponseWriter) *StatusCapturingResponseWriter {
	return &StatusCapturingResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code and writes it to the underlying ResponseWriter.
func (w *StatusCapturingResponseWriter) WriteHeader(code int) {
	if w.HeaderWritten {
		return
	}
	w.StatusCode = code
	// 1xx responses may be followed by the final header.
	if code >= http.StatusOK || code == http.StatusSwitchingProtocols {
		w.HeaderWritten = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Write writes data to the underlying ResponseWriter and marks header as written.
func (w *StatusCapturingResponseWriter) Write(b []byte) (int, error) {
	if !w.HeaderWritten {
		w.HeaderWritten = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.Size += int64(n)
	return n, err
}

// Flush implements http.Flusher interface for streaming support.
func (w *StatusCapturingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker. A hijacked connection is reported as
// 101 Switching Protocols.
func (w *StatusCapturingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer %T does not support hijacking", w.ResponseWriter)
	}
	conn, rw, err := h.Hijack()
	if err != nil {
		return nil, nil, err
	}
	w.Hijacked = true
	w.HeaderWritten = true
	w.StatusCode = http.StatusSwitchingProtocols
	return conn, rw, nil
}

// Unwrap returns the wrapped writer for http.ResponseController.
func (w *StatusCapturingResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Compile-time interface assertions.
var (
	_ http.Flusher  = (*StatusCapturingResponseWriter)(nil)
	_ http.Hijacker = (*StatusCapturingResponseWriter)(nil)
)
