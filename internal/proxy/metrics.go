package proxy

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// proxyMetrics contains Prometheus metrics for proxy operations.
// Labels never carry the upstream host: dynamic targets are caller
// controlled and would make cardinality unbounded.
type proxyMetrics struct {
	resolutionsTotal  *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	upstreamDuration  *prometheus.HistogramVec
	websocketActive   prometheus.Gauge
	websocketMessages *prometheus.CounterVec
	websocketSession  *prometheus.HistogramVec
}

var (
	proxyMetricsInstance *proxyMetrics
	proxyMetricsOnce     sync.Once
)

// InitProxyMetrics initializes the singleton proxy metrics instance with the
// given registerer. A nil registerer means the default registerer. Only the
// first call has an effect.
func InitProxyMetrics(registerer prometheus.Registerer) {
	proxyMetricsOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		factory := promauto.With(registerer)
		proxyMetricsInstance = &proxyMetrics{
			resolutionsTotal: factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "dynproxy",
					Subsystem: "proxy",
					Name:      "resolutions_total",
					Help:      "Total number of resolved upstream targets by mode",
				},
				[]string{"mode"},
			),
			errorsTotal: factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "dynproxy",
					Subsystem: "proxy",
					Name:      "errors_total",
					Help: "Total number of " +
						"upstream errors",
				},
				[]string{"mode", "error_type"},
			),
			upstreamDuration: factory.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "dynproxy",
					Subsystem: "proxy",
					Name:      "upstream_duration_seconds",
					Help:      "Duration of forwarded HTTP requests, WebSocket sessions excluded",
					Buckets: []float64{
						.001, .005, .01, .025,
						.05, .1, .25, .5,
						1, 2.5, 5, 10,
					},
				},
				[]string{"mode"},
			),
			websocketActive: factory.NewGauge(
				prometheus.GaugeOpts{
					Namespace: "dynproxy",
					Subsystem: "proxy",
					Name:      "websocket_connections_active",
					Help:      "Number of relayed WebSocket connections",
				},
			),
			websocketMessages: factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "dynproxy",
					Subsystem: "proxy",
					Name:      "websocket_messages_total",
					Help:      "Total number of relayed WebSocket messages",
				},
				[]string{"direction"},
			),
			websocketSession: factory.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "dynproxy",
					Subsystem: "proxy",
					Name:      "websocket_session_duration_seconds",
					Help:      "Lifetime of relayed WebSocket sessions",
					Buckets: []float64{
						.1, 1, 5, 15,
						30, 60, 300, 900,
						1800, 3600,
					},
				},
				[]string{"mode"},
			),
		}
		initProxyVecMetrics()
	})
}

// initProxyVecMetrics pre-populates label combinations so the series show
// up in /metrics right after startup.
func initProxyVecMetrics() {
	m := proxyMetricsInstance
	for _, mode := range []string{ModeStatic, ModeDynamic} {
		m.resolutionsTotal.WithLabelValues(mode)
		m.upstreamDuration.WithLabelValues(mode)
		m.websocketSession.WithLabelValues(mode)
		for _, et := range []string{
			errorTypeCanceled,
			errorTypeTimeout,
			errorTypeConnectionRefused,
			errorTypeBadGateway,
		} {
			m.errorsTotal.WithLabelValues(mode, et)
		}
	}
	m.websocketMessages.WithLabelValues(directionUpstream)
	m.websocketMessages.WithLabelValues(directionDownstream)
}

// getProxyMetrics returns the singleton, registering with the default
// registerer if InitProxyMetrics was never called.
func getProxyMetrics() *proxyMetrics {
	InitProxyMetrics(nil)
	return proxyMetricsInstance
}
