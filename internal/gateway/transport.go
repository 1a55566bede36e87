package gateway

import (
	"crypto/tls"
	"net"
	"net/http"

	"github.com/vyrodovalexey/dynproxy/internal/config"
)

// NewTransport builds the outbound transport from cfg. Zero values keep
// the http.Transport default for that setting.
func NewTransport(cfg config.TransportConfig) *http.Transport {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout.Duration(),
			KeepAlive: cfg.KeepAlive.Duration(),
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout.Duration(),
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout.Duration(),
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout.Duration(),
		ExpectContinueTimeout: cfg.ExpectContinueTimeout.Duration(),
	}

	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // opt-in for self-signed upstreams
		}
	}

	return transport
}
