package middleware

import (
	"net/http"
	"time"

	"github.com/vyrodovalexey/dynproxy/internal/observability"
	"github.com/vyrodovalexey/dynproxy/internal/util"
)

// Logging returns a middleware that logs HTTP requests.
func Logging(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := util.ContextWithStartTime(r.Context(), time.Now())
			r = r.WithContext(ctx)

			rw := util.NewStatusCapturingResponseWriter(w)

			next.ServeHTTP(rw, r)

			//nolint:contextcheck // request context carries the IDs
			logger.WithContext(r.Context()).Info("http request",
				observability.String("method", r.Method),
				observability.String("path", r.URL.Path),
				observability.String("query", r.URL.RawQuery),
				observability.Int("status", rw.StatusCode),
				observability.Int64("size", rw.Size),
				observability.Duration("duration", util.ElapsedTime(r.Context())),
				observability.String("remote_addr", r.RemoteAddr),
				observability.String("client_ip", getClientIP(r)),
				observability.String("user_agent", r.UserAgent()),
				observability.Bool("upgraded", rw.Hijacked),
			)
		})
	}
}

// getClientIP extracts the client IP with the extractor carried by the
// request context. Without one only RemoteAddr is used.
func getClientIP(r *http.Request) string {
	return ClientIPExtractorFromContext(r.Context()).Extract(r)
}
