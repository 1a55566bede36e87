package middleware

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// middlewareMetrics holds Prometheus metrics for middleware operations.
type middlewareMetrics struct {
	rateLimitRejected prometheus.Counter
	panicsRecovered   prometheus.Counter
}

var (
	mwMetrics     *middlewareMetrics
	mwMetricsOnce sync.Once
)

// InitMiddlewareMetrics creates the middleware metrics and registers them
// with registerer. Only the first call has an effect; nil means the
// default registerer.
func InitMiddlewareMetrics(registerer prometheus.Registerer) {
	mwMetricsOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		mwMetrics = newMiddlewareMetrics()
		registerer.MustRegister(mwMetrics.rateLimitRejected, mwMetrics.panicsRecovered)
	})
}

func getMiddlewareMetrics() *middlewareMetrics {
	InitMiddlewareMetrics(nil)
	return mwMetrics
}

func newMiddlewareMetrics() *middlewareMetrics {
	return &middlewareMetrics{
		rateLimitRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "dynproxy",
				Subsystem: "middleware",
				Name:      "rate_limit_rejected_total",
				Help:      "Total number of requests rejected by the rate limiter",
			},
		),
		panicsRecovered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "dynproxy",
				Subsystem: "middleware",
				Name:      "panics_recovered_total",
				Help:      "Total number of panics recovered by middleware",
			},
		),
	}
}
