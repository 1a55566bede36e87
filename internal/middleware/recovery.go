package middleware

import (
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/vyrodovalexey/dynproxy/internal/observability"
)

// Recovery returns a middleware that recovers from panics with a generic
// JSON 500 response.
func Recovery(logger observability.Logger) func(http.Handler) http.Handler {
	return recovery(logger, false)
}

// DevelopmentRecovery is like Recovery but writes the panic value and the
// stack trace into a plain text response body.
func DevelopmentRecovery(logger observability.Logger) func(http.Handler) http.Handler {
	return recovery(logger, true)
}

func recovery(logger observability.Logger, development bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				// Aborted responses are re-raised for net/http.
				if err == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
					panic(err)
				}

				stack := debug.Stack()

				logger.WithContext(r.Context()).Error("panic recovered",
					observability.String("path", r.URL.Path),
					observability.String("method", r.Method),
					observability.Any("error", err),
					observability.String("stack", string(stack)),
				)

				getMiddlewareMetrics().panicsRecovered.Inc()

				if development {
					w.Header().Set(HeaderContentType, ContentTypeTextPlain)
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = fmt.Fprintf(w, "panic: %v\n\n%s", err, stack)
					return
				}

				w.Header().Set(HeaderContentType, ContentTypeJSON)
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, ErrInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
