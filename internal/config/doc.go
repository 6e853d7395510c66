// Package config loads, defaults, validates and watches the multiplexer
// configuration.
//
// The configuration is a single YAML document:
//
//	apiVersion: avamux.io/v1
//	kind: Multiplexer
//	metadata:
//	  name: render-farm
//	spec:
//	  listener:
//	    port: 3000
//	  backends:
//	    addresses: ["10.0.0.1:8080", "10.0.0.2:8080"]
//	    maxRequestsPerBackend: 2
//	  dispatch:
//	    requestDebounceMs: 50
//
// ${VAR} and ${VAR:-default} references are expanded from the process
// environment before parsing. Use $$ for a literal dollar sign.
package config
