package client

import (
	"fmt"
	"net/http"
	"time"

	httpclient "github.com/appleboy/go-httpclient"
	retry "github.com/appleboy/go-httpretry"
)

// CreateTokenClient creates the HTTP client used against the Intuit token
// endpoint. It carries a timeout only; token grants are never retried.
func CreateTokenClient(timeout time.Duration) (*http.Client, error) {
	c, err := httpclient.NewClient(
		httpclient.WithTimeout(timeout),
		httpclient.WithTransport(CreateOptimizedTransport()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token client: %w", err)
	}
	return c, nil
}

// CreateRetryClient creates an HTTP client with retry support for the
// QuickBooks data API. Reads there are idempotent, so 5xx and 429 responses
// are retried with exponential backoff.
func CreateRetryClient(
	timeout time.Duration,
	maxRetries int,
	retryDelay, maxRetryDelay time.Duration,
) (*retry.Client, error) {
	c, err := httpclient.NewClient(
		httpclient.WithTimeout(timeout),
		httpclient.WithTransport(CreateOptimizedTransport()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	// Wrap with retry client
	retryClient, err := retry.NewRealtimeClient(
		retry.WithHTTPClient(c),
		retry.WithMaxRetries(maxRetries),
		retry.WithInitialRetryDelay(retryDelay),
		retry.WithMaxRetryDelay(maxRetryDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}

	return retryClient, nil
}

// CreateOptimizedTransport returns a transport with a connection pool sized
// for a handful of upstream hosts.
func CreateOptimizedTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 50
	t.MaxIdleConnsPerHost = 10
	t.IdleConnTimeout = 90 * time.Second
	t.TLSHandshakeTimeout = 10 * time.Second
	return t
}
