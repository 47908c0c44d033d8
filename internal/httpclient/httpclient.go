// Package httpclient provides the shared tuned HTTP client used by every
// provider adapter and EPG source fetch, plus single-retry and per-host
// throttling helpers so ten adapters hammering the same upstream stay polite.
package httpclient

import (
	"net/http"
	"time"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 16

	// UserAgent sent on provider and guide fetches unless an adapter needs
	// to impersonate a specific client.
	UserAgent = "faststreams/1.0"
)

var defaultClient *http.Client

func init() {
	defaultClient = &http.Client{
		Timeout: DefaultTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: MaxIdleConnsPerHost,
			IdleConnTimeout:     DefaultIdleConnTimeout,
		},
	}
}

// Default returns the shared tuned HTTP client.
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client with the given timeout and the same transport
// as Default (or a copy).
func WithTimeout(timeout time.Duration) *http.Client {
	t, ok := defaultClient.Transport.(*http.Transport)
	if !ok {
		return &http.Client{Timeout: timeout}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: t.Clone(),
	}
}
