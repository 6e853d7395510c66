package config

const validConfigYAML = `
apiVersion: avamux.io/v1
kind: Multiplexer
metadata:
  name: test
spec:
  listener:
    port: 3100
  backends:
    addresses:
      - localhost:8081
      - localhost:8082
    maxRequestsPerBackend: 2
  dispatch:
    requestDebounceMs: 25
`

const invalidConfigYAML = `
apiVersion: avamux.io/v1
kind: Multiplexer
metadata:
  name: test
spec:
  backends:
    addresses: []
`
