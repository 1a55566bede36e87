package main

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vyrodovalexey/dynproxy/internal/config"
	"github.com/vyrodovalexey/dynproxy/internal/health"
	"github.com/vyrodovalexey/dynproxy/internal/observability"
)

// newAdminRouter builds the admin listener routes: health probes always,
// metrics when enabled.
func newAdminRouter(
	cfg *config.ProxyConfig,
	metrics *observability.Metrics,
	healthChecker *health.Checker,
) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", healthChecker.HealthHandler()).Methods(http.MethodGet)
	router.HandleFunc("/ready", healthChecker.ReadinessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/live", healthChecker.LivenessHandler()).Methods(http.MethodGet)

	if m := cfg.Spec.Observability.Metrics; m.Enabled {
		router.Handle(firstNonEmpty(m.Path, config.DefaultMetricsPath), metrics.Handler()).
			Methods(http.MethodGet)
	}

	return router
}
