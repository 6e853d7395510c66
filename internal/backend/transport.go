package backend

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// TransportConfig contains outbound connection settings.
type TransportConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	DialTimeout         time.Duration
	KeepAlive           time.Duration
	InsecureSkipVerify  bool
}

// DefaultTransportConfig returns default transport settings.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         30 * time.Second,
		KeepAlive:           30 * time.Second,
	}
}

// Transport is the keep-alive connection pool shared by every forward.
type Transport struct {
	transport *http.Transport
	client    *http.Client
}

// NewTransport creates a transport. Compression is disabled and redirects
// are returned to the caller so backend responses are relayed as sent.
// Deadlines come from the request context, not from the client.
func NewTransport(cfg TransportConfig) *Transport {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
	}

	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // operator opt-in for self-signed backends
			MinVersion:         tls.VersionTLS12,
		}
	}

	return &Transport{
		transport: transport,
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Client returns the HTTP client.
func (t *Transport) Client() *http.Client {
	return t.client
}

// Close closes idle connections.
func (t *Transport) Close() {
	t.transport.CloseIdleConnections()
}
