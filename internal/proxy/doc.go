// Package proxy resolves inbound requests to an upstream URL and forwards
// them.
//
// A request is resolved either against the statically configured upstream
// or, when dynamic mode is enabled, against a scheme and host decoded from
// the first two path segments:
//
//	GET /https/api.example.com/v1/items?page=2
//	  -> https://api.example.com:443/v1/items?page=2
//
// Paths too short to carry both tokens fall back to the static upstream.
// Configured query parameters are appended in both cases.
//
// Forwarding is single-hop and single-attempt. Responses are streamed back
// unchanged; a failed upstream call becomes a 502. WebSocket upgrades are
// relayed message by message, with connection-specific handshake headers
// regenerated for the upstream hop.
//
// # Usage
//
//	p, err := proxy.NewReverseProxy(&proxy.Options{
//	    Scheme:                  "http",
//	    Host:                    "localhost:13579",
//	    UseDynamicSchemeAndHost: true,
//	    PrepareRequest:          proxy.ForwardedHost,
//	}, proxy.WithProxyLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	http.Handle("/", p)
package proxy
