package proxy

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/vyrodovalexey/dynproxy/internal/observability"
)

const (
	directionUpstream   = "upstream"
	directionDownstream = "downstream"
)

// notForwardedWebSocketHeaders are connection specific; the dialer
// regenerates them for the new hop.
var notForwardedWebSocketHeaders = []string{
	"Connection",
	"Host",
	"Upgrade",
	"Sec-WebSocket-Key",
	"Sec-WebSocket-Version",
}

// dialerManagedHeaders are negotiated by the dialer itself, which refuses
// a caller supplied copy.
var dialerManagedHeaders = []string{
	"Sec-WebSocket-Extensions",
}

// upgraderManagedHeaders are written by the upgrader on the client hop.
var upgraderManagedHeaders = []string{
	"Connection",
	"Upgrade",
	"Sec-WebSocket-Accept",
	"Sec-WebSocket-Extensions",
}

// websocketProxy relays upgrade requests message by message.
type websocketProxy struct {
	logger   observability.Logger
	dialer   *websocket.Dialer
	upgrader websocket.Upgrader
	prepare  PrepareRequestFunc
	excluded map[string]struct{}
}

// newWebSocketProxy builds a WebSocket forwarder that shares TLS and dial
// settings with transport when it is an *http.Transport.
func newWebSocketProxy(
	logger observability.Logger,
	transport http.RoundTripper,
	prepare PrepareRequestFunc,
) *websocketProxy {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
	}
	if t, ok := transport.(*http.Transport); ok {
		if t.TLSClientConfig != nil {
			dialer.TLSClientConfig = t.TLSClientConfig.Clone()
		}
		if t.DialContext != nil {
			dialer.NetDialContext = t.DialContext
		}
		if t.TLSHandshakeTimeout > 0 {
			dialer.HandshakeTimeout = t.TLSHandshakeTimeout
		}
		dialer.Proxy = t.Proxy
	}

	excluded := make(map[string]struct{})
	for _, set := range [][]string{notForwardedWebSocketHeaders, dialerManagedHeaders} {
		for _, h := range set {
			excluded[http.CanonicalHeaderKey(h)] = struct{}{}
		}
	}

	return &websocketProxy{
		logger: logger,
		dialer: dialer,
		upgrader: websocket.Upgrader{
			// The caller's Origin header is forwarded; the upstream decides.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		prepare:  prepare,
		excluded: excluded,
	}
}

// proxyWebSocket dials the upstream, upgrades the caller and relays
// messages until either side closes. It returns the number of messages
// sent to the caller and received from the caller.
func (wp *websocketProxy) proxyWebSocket(
	w http.ResponseWriter,
	r *http.Request,
	target *Target,
) (sent int64, received int64, err error) {
	upstreamURL := buildUpstreamWSURL(target)
	requestHeader := wp.buildRequestHeaders(r)

	upstreamConn, resp, dialErr := wp.dialer.DialContext(r.Context(), upstreamURL, requestHeader)
	if dialErr != nil {
		wp.handleDialError(w, resp, dialErr)
		return 0, 0, fmt.Errorf("failed to dial upstream WebSocket: %w", dialErr)
	}
	defer upstreamConn.Close()

	clientConn, upgradeErr := wp.upgrader.Upgrade(w, r, buildResponseHeaders(resp))
	if upgradeErr != nil {
		return 0, 0, fmt.Errorf("failed to upgrade client connection: %w", upgradeErr)
	}
	defer clientConn.Close()

	sent, received = wp.relay(clientConn, upstreamConn)
	return sent, received, nil
}

// handleDialError relays the upstream's refusal, or answers 502 when the
// upstream never responded.
func (wp *websocketProxy) handleDialError(
	w http.ResponseWriter,
	resp *http.Response,
	dialErr error,
) {
	wp.logger.Debug("upstream websocket dial failed",
		observability.Error(dialErr),
	)

	if resp == nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
}

// relay copies messages between the two connections until one side ends.
func (wp *websocketProxy) relay(clientConn, upstreamConn *websocket.Conn) (sent int64, received int64) {
	errCh := make(chan error, 2)
	var sentCount, receivedCount atomic.Int64
	metrics := getProxyMetrics()

	go func() {
		errCh <- pump(upstreamConn, clientConn, &sentCount, func() {
			metrics.websocketMessages.WithLabelValues(directionDownstream).Inc()
		})
	}()
	go func() {
		errCh <- pump(clientConn, upstreamConn, &receivedCount, func() {
			metrics.websocketMessages.WithLabelValues(directionUpstream).Inc()
		})
	}()

	if err := <-errCh; err != nil {
		wp.logger.Debug("websocket relay finished", observability.Error(err))
	}

	return sentCount.Load(), receivedCount.Load()
}

// pump reads from src and writes to dst. When src closes, the close code is
// passed on to dst.
func pump(src, dst *websocket.Conn, count *atomic.Int64, onMessage func()) error {
	for {
		msgType, msg, err := src.ReadMessage()
		if err != nil {
			code, text := websocket.CloseNormalClosure, ""
			if ce, ok := err.(*websocket.CloseError); ok {
				code, text = ce.Code, ce.Text
			}
			if code == websocket.CloseNoStatusReceived || code == websocket.CloseAbnormalClosure {
				code = websocket.CloseNormalClosure
			}
			_ = dst.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
			return err
		}
		count.Add(1)
		onMessage()
		if err := dst.WriteMessage(msgType, msg); err != nil {
			return err
		}
	}
}

// buildRequestHeaders copies the caller's headers minus the excluded set,
// then applies trace propagation and the PrepareRequest hook.
func (wp *websocketProxy) buildRequestHeaders(r *http.Request) http.Header {
	header := http.Header{}
	for k, vv := range r.Header {
		if _, skip := wp.excluded[http.CanonicalHeaderKey(k)]; skip {
			continue
		}
		header[k] = append([]string(nil), vv...)
	}

	outbound := &http.Request{Header: header}
	observability.InjectTraceContext(r.Context(), outbound)

	if wp.prepare != nil {
		wp.prepare(r, header)
	}
	return header
}

// buildResponseHeaders returns the upstream handshake headers the
// upgrader does not generate itself.
func buildResponseHeaders(resp *http.Response) http.Header {
	if resp == nil {
		return nil
	}
	header := resp.Header.Clone()
	for _, h := range upgraderManagedHeaders {
		header.Del(h)
	}
	return header
}

// buildUpstreamWSURL maps the target onto ws or wss.
func buildUpstreamWSURL(target *Target) string {
	u := target.URL()
	if u.Scheme == schemeHTTPS {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}
