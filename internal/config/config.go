package config

import (
	"time"

	"github.com/vyrodovalexey/dynproxy/internal/proxy"
)

// Envelope constants.
const (
	APIVersionPrefix = "dynproxy.avapigw.io/"
	APIVersionV1     = APIVersionPrefix + "v1"
	KindProxy        = "Proxy"
)

// ProxyConfig is the root of the configuration file.
type ProxyConfig struct {
	APIVersion string    `yaml:"apiVersion"`
	Kind       string    `yaml:"kind"`
	Metadata   Metadata  `yaml:"metadata"`
	Spec       ProxySpec `yaml:"spec"`
}

// Metadata identifies the proxy instance.
type Metadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// ProxySpec holds the proxy settings.
type ProxySpec struct {
	Listener      ListenerConfig      `yaml:"listener"`
	Admin         AdminConfig         `yaml:"admin"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Transport     TransportConfig     `yaml:"transport"`
	RateLimit     *RateLimitConfig    `yaml:"rateLimit,omitempty"`
	Observability ObservabilityConfig `yaml:"observability"`

	// Development writes panic details into 500 responses.
	Development bool `yaml:"development,omitempty"`

	// Watch reloads the file when it changes.
	Watch bool `yaml:"watch,omitempty"`
}

// ListenerConfig configures the proxy listener. Read and write timeouts
// default to zero so long-lived streams and WebSocket connections are not
// cut off.
type ListenerConfig struct {
	Address           string   `yaml:"address"`
	ReadTimeout       Duration `yaml:"readTimeout,omitempty"`
	ReadHeaderTimeout Duration `yaml:"readHeaderTimeout,omitempty"`
	WriteTimeout      Duration `yaml:"writeTimeout,omitempty"`
	IdleTimeout       Duration `yaml:"idleTimeout,omitempty"`
	ShutdownTimeout   Duration `yaml:"shutdownTimeout,omitempty"`
	MaxHeaderBytes    int      `yaml:"maxHeaderBytes,omitempty"`
}

// AdminConfig configures the listener serving metrics and health
// endpoints. An empty address disables it.
type AdminConfig struct {
	Address string `yaml:"address"`
}

// UpstreamConfig describes where requests are forwarded.
type UpstreamConfig struct {
	Scheme                  string       `yaml:"scheme"`
	Host                    string       `yaml:"host"`
	PathBase                string       `yaml:"pathBase,omitempty"`
	AppendQuery             []QueryParam `yaml:"appendQuery,omitempty"`
	UseDynamicSchemeAndHost bool         `yaml:"useDynamicSchemeAndHost,omitempty"`

	// ForwardedHost adds X-Forwarded-Host to outbound requests. Defaults
	// to true.
	ForwardedHost *bool `yaml:"forwardedHost,omitempty"`

	// FlushInterval batches response body flushes. Zero flushes after
	// every write.
	FlushInterval Duration `yaml:"flushInterval,omitempty"`
}

// QueryParam is one appended query parameter.
type QueryParam struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// TransportConfig configures the outbound HTTP transport.
type TransportConfig struct {
	DialTimeout           Duration `yaml:"dialTimeout,omitempty"`
	KeepAlive             Duration `yaml:"keepAlive,omitempty"`
	TLSHandshakeTimeout   Duration `yaml:"tlsHandshakeTimeout,omitempty"`
	ResponseHeaderTimeout Duration `yaml:"responseHeaderTimeout,omitempty"`
	IdleConnTimeout       Duration `yaml:"idleConnTimeout,omitempty"`
	ExpectContinueTimeout Duration `yaml:"expectContinueTimeout,omitempty"`
	MaxIdleConns          int      `yaml:"maxIdleConns,omitempty"`
	MaxIdleConnsPerHost   int      `yaml:"maxIdleConnsPerHost,omitempty"`
	InsecureSkipVerify    bool     `yaml:"insecureSkipVerify,omitempty"`
}

// RateLimitConfig configures inbound rate limiting.
type RateLimitConfig struct {
	Enabled           bool     `yaml:"enabled"`
	RequestsPerSecond float64  `yaml:"requestsPerSecond"`
	Burst             int      `yaml:"burst"`
	PerClient         bool     `yaml:"perClient,omitempty"`
	ClientTTL         Duration `yaml:"clientTTL,omitempty"`
	TrustedProxies    []string `yaml:"trustedProxies,omitempty"`
}

// ForwardedHostEnabled reports whether the X-Forwarded-Host hook is on.
func (u *UpstreamConfig) ForwardedHostEnabled() bool {
	return u.ForwardedHost == nil || *u.ForwardedHost
}

// ResponseFlushInterval returns the flush interval for the forwarder.
// Zero maps to -1, which httputil.ReverseProxy treats as flush after
// every write.
func (u *UpstreamConfig) ResponseFlushInterval() time.Duration {
	if d := u.FlushInterval.Duration(); d > 0 {
		return d
	}
	return -1
}

// ProxyOptions converts the upstream section into proxy options. The
// result is a fresh value; the configuration is not referenced afterwards.
func (u *UpstreamConfig) ProxyOptions() *proxy.Options {
	opts := &proxy.Options{
		Scheme:                  u.Scheme,
		Host:                    u.Host,
		PathBase:                u.PathBase,
		UseDynamicSchemeAndHost: u.UseDynamicSchemeAndHost,
	}

	if len(u.AppendQuery) > 0 {
		opts.AppendQuery = make([]proxy.QueryParam, 0, len(u.AppendQuery))
		for _, q := range u.AppendQuery {
			opts.AppendQuery = append(opts.AppendQuery, proxy.QueryParam{Key: q.Key, Value: q.Value})
		}
	}

	if u.ForwardedHostEnabled() {
		opts.PrepareRequest = proxy.ForwardedHost
	}

	return opts
}
