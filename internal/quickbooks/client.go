// Package quickbooks is a minimal client for the QuickBooks Online
// accounting API query endpoint.
package quickbooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	retry "github.com/appleboy/go-httpretry"

	"github.com/go-authgate/qbgate/internal/metrics"
)

const (
	opQuery          = "query"
	maxResponseBytes = 8 << 20
)

var (
	// ErrUnauthorized means QuickBooks rejected the bearer token. The grant
	// behind it has to be renewed by an operator.
	ErrUnauthorized = errors.New("quickbooks rejected the access token")
	ErrMissingRealm = errors.New("quickbooks realm id is not known")
)

// APIError is a non-2xx response from the QuickBooks API.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("quickbooks %s: HTTP %d: %s", e.Operation, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Client runs queries against one QuickBooks API host.
type Client struct {
	http         *retry.Client
	baseURL      string
	minorVersion string
	metrics      metrics.Recorder
}

// NewClient creates a Client. baseURL is the API host root, for example
// https://sandbox-quickbooks.api.intuit.com.
func NewClient(httpClient *retry.Client, baseURL, minorVersion string, m metrics.Recorder) *Client {
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	return &Client{
		http:         httpClient,
		baseURL:      strings.TrimRight(baseURL, "/"),
		minorVersion: minorVersion,
		metrics:      m,
	}
}

// Query runs a QuickBooks query statement for realmID.
func (c *Client) Query(
	ctx context.Context,
	realmID, accessToken, statement string,
) (*QueryResponse, error) {
	if realmID == "" {
		return nil, ErrMissingRealm
	}

	params := url.Values{"query": {statement}}
	if c.minorVersion != "" {
		params.Set("minorversion", c.minorVersion)
	}
	endpoint := fmt.Sprintf("%s/v3/company/%s/query?%s",
		c.baseURL, url.PathEscape(realmID), params.Encode())

	start := time.Now()
	resp, err := c.http.Get(
		ctx,
		endpoint,
		retry.WithHeader("Authorization", "Bearer "+accessToken),
		retry.WithHeader("Accept", "application/json"),
	)
	if err != nil {
		c.metrics.RecordExternalAPICall(opQuery, 0, time.Since(start))
		return nil, fmt.Errorf("quickbooks %s: %w", opQuery, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordExternalAPICall(opQuery, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("quickbooks %s: read body: %w", opQuery, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			Operation:  opQuery,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 300),
		}
	}

	var envelope struct {
		QueryResponse QueryResponse `json:"QueryResponse"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("quickbooks %s: decode response: %w", opQuery, err)
	}
	return &envelope.QueryResponse, nil
}

// EscapeQueryValue escapes a literal for use inside single quotes in a
// QuickBooks query statement.
func EscapeQueryValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
