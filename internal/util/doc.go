// Package util provides small helpers shared across dynproxy.
//
// # Context Helpers
//
// Request start time for latency accounting:
//
//	ctx = util.ContextWithStartTime(ctx, time.Now())
//	elapsed := util.ElapsedTime(ctx)
//
// # Error Types
//
//   - ConfigError: a configuration field that failed to load or validate
//   - ErrConfigInvalid, ErrRateLimited: sentinels checked with errors.Is
//
// # HTTP Utilities
//
// A response writer wrapper that records status and size while keeping
// streaming and connection upgrades working:
//
//	w := util.NewStatusCapturingResponseWriter(responseWriter)
//	handler.ServeHTTP(w, r)
//	statusCode := w.StatusCode
//
// # Validation
//
// Input validation helpers for schemes, hosts, paths and durations:
//
//	err := util.ValidateScheme("https")
//	err := util.ValidateHostPort("example.com:8443")
package util
