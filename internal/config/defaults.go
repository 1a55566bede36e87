package config

import "time"

// Default values applied to unset fields.
const (
	DefaultListenAddress     = ":8080"
	DefaultAdminAddress      = ":9090"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second

	DefaultDialTimeout           = 30 * time.Second
	DefaultKeepAlive             = 30 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultExpectContinueTimeout = time.Second
	DefaultMaxIdleConns          = 100
	DefaultMaxIdleConnsPerHost   = 10

	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
	DefaultLogOutput    = "stdout"
	DefaultMetricsPath  = "/metrics"
	DefaultServiceName  = "dynproxy"
	DefaultSamplingRate = 1.0
	DefaultRateBurst    = 1
	DefaultClientTTL    = 10 * time.Minute
)

// DefaultConfig returns a configuration with every default applied and no
// upstream. It does not validate until an upstream is set.
func DefaultConfig() *ProxyConfig {
	cfg := &ProxyConfig{
		APIVersion: APIVersionV1,
		Kind:       KindProxy,
		Metadata:   Metadata{Name: "dynproxy"},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields of cfg in place.
func ApplyDefaults(cfg *ProxyConfig) {
	if cfg == nil {
		return
	}

	applyListenerDefaults(&cfg.Spec.Listener)
	applyTransportDefaults(&cfg.Spec.Transport)
	applyObservabilityDefaults(&cfg.Spec.Observability)

	if cfg.Spec.RateLimit != nil {
		if cfg.Spec.RateLimit.Burst == 0 {
			cfg.Spec.RateLimit.Burst = DefaultRateBurst
		}
		if cfg.Spec.RateLimit.ClientTTL == 0 {
			cfg.Spec.RateLimit.ClientTTL = Duration(DefaultClientTTL)
		}
	}
}

func applyListenerDefaults(l *ListenerConfig) {
	if l.Address == "" {
		l.Address = DefaultListenAddress
	}
	if l.ReadHeaderTimeout == 0 {
		l.ReadHeaderTimeout = Duration(DefaultReadHeaderTimeout)
	}
	if l.IdleTimeout == 0 {
		l.IdleTimeout = Duration(DefaultIdleTimeout)
	}
	if l.ShutdownTimeout == 0 {
		l.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
}

func applyTransportDefaults(t *TransportConfig) {
	if t.DialTimeout == 0 {
		t.DialTimeout = Duration(DefaultDialTimeout)
	}
	if t.KeepAlive == 0 {
		t.KeepAlive = Duration(DefaultKeepAlive)
	}
	if t.TLSHandshakeTimeout == 0 {
		t.TLSHandshakeTimeout = Duration(DefaultTLSHandshakeTimeout)
	}
	if t.IdleConnTimeout == 0 {
		t.IdleConnTimeout = Duration(DefaultIdleConnTimeout)
	}
	if t.ExpectContinueTimeout == 0 {
		t.ExpectContinueTimeout = Duration(DefaultExpectContinueTimeout)
	}
	if t.MaxIdleConns == 0 {
		t.MaxIdleConns = DefaultMaxIdleConns
	}
	if t.MaxIdleConnsPerHost == 0 {
		t.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
}

func applyObservabilityDefaults(o *ObservabilityConfig) {
	if o.Logging.Level == "" {
		o.Logging.Level = DefaultLogLevel
	}
	if o.Logging.Format == "" {
		o.Logging.Format = DefaultLogFormat
	}
	if o.Logging.Output == "" {
		o.Logging.Output = DefaultLogOutput
	}
	if o.Metrics.Path == "" {
		o.Metrics.Path = DefaultMetricsPath
	}
	if o.Tracing.ServiceName == "" {
		o.Tracing.ServiceName = DefaultServiceName
	}
	if o.Tracing.Enabled && o.Tracing.SamplingRate == 0 {
		o.Tracing.SamplingRate = DefaultSamplingRate
	}
}
