// Package config loads, defaults and validates the dynproxy configuration
// file.
//
// The file uses a Kubernetes-style envelope:
//
//	apiVersion: dynproxy.avapigw.io/v1
//	kind: Proxy
//	metadata:
//	  name: edge
//	spec:
//	  listener:
//	    address: ":8080"
//	  upstream:
//	    scheme: https
//	    host: api.example.com
//	    pathBase: /v1
//	    useDynamicSchemeAndHost: true
//	    appendQuery:
//	      - key: client
//	        value: dynproxy
//
// Values may reference the environment as ${VAR} or ${VAR:-default}; a
// literal dollar sign is written as $$.
//
// LoadConfig applies defaults after parsing and ValidateConfig reports
// every problem at once as ValidationErrors. When spec.watch is set the
// Watcher reloads the file on change and hands each valid configuration
// to a callback.
package config
