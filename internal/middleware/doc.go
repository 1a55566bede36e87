// Package middleware provides HTTP middleware for the dynproxy listener.
//
// The middlewares wrap the reverse proxy in this order, outermost first:
//
//	Recovery -> RequestID -> Tracing -> Logging -> Metrics -> RateLimit -> proxy
//
// Every wrapper that inspects the response uses
// util.StatusCapturingResponseWriter, so streaming and WebSocket
// upgrades keep working through the chain.
package middleware
