// Package health provides the liveness, readiness and health endpoints
// served on the admin listener.
//
// Readiness aggregates registered checks. The proxy registers a check that
// reports the active upstream configuration, and the server marks itself
// draining on shutdown so load balancers stop sending traffic before the
// listener closes.
package health
