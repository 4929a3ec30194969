package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Token check outcomes
const (
	OutcomeValid     = "valid"
	OutcomeRefreshed = "refreshed"
	OutcomeRecovered = "recovered" // another caller refreshed first
	OutcomeReauth    = "reauth_required"
	OutcomeNoToken   = "no_token"
	OutcomeFatal     = "fatal"
)

// OAuth state results
const (
	StateIssued   = "issued"
	StateConsumed = "consumed"
	StateMissing  = "missing"
	StateExpired  = "expired"
	StateReplayed = "replayed"
	StateError    = "error"
)

// Recorder defines the interface for recording application metrics.
// Implementations include Metrics (Prometheus-based) and NoopMetrics (no-op).
type Recorder interface {
	RecordTokenCheck(outcome string)
	RecordTokenRefresh(success bool, duration time.Duration)
	RecordOAuthCallback(success bool)
	RecordOAuthState(result string)
	RecordExternalAPICall(operation string, status int, duration time.Duration)
}

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Token lifecycle
	TokenChecksTotal     *prometheus.CounterVec
	TokenRefreshTotal    *prometheus.CounterVec
	TokenRefreshDuration prometheus.Histogram

	// Authorization flow
	OAuthCallbackTotal *prometheus.CounterVec
	OAuthStateTotal    *prometheus.CounterVec

	// QuickBooks API
	ExternalAPIDuration *prometheus.HistogramVec

	// HTTP Request Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag.
// Prometheus collectors are registered at most once per process.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

func initMetrics() *Metrics {
	return &Metrics{
		TokenChecksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qbgate_token_checks_total",
				Help: "Token validity checks by outcome",
			},
			[]string{"outcome"},
		),
		TokenRefreshTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qbgate_token_refresh_total",
				Help: "Refresh grant attempts against the token endpoint",
			},
			[]string{"result"}, // success, error
		),
		TokenRefreshDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qbgate_token_refresh_duration_seconds",
				Help:    "Latency of refresh grant calls",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
			},
		),
		OAuthCallbackTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qbgate_oauth_callbacks_total",
				Help: "Authorization callbacks handled",
			},
			[]string{"result"},
		),
		OAuthStateTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qbgate_oauth_state_total",
				Help: "OAuth state values issued and consumed",
			},
			[]string{"result"},
		),
		ExternalAPIDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qbgate_quickbooks_api_duration_seconds",
				Help:    "Latency of QuickBooks API calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "status"},
		),
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),
	}
}

func (m *Metrics) RecordTokenCheck(outcome string) {
	m.TokenChecksTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordTokenRefresh(success bool, duration time.Duration) {
	m.TokenRefreshTotal.WithLabelValues(resultLabel(success)).Inc()
	m.TokenRefreshDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordOAuthCallback(success bool) {
	m.OAuthCallbackTotal.WithLabelValues(resultLabel(success)).Inc()
}

func (m *Metrics) RecordOAuthState(result string) {
	m.OAuthStateTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordExternalAPICall(operation string, status int, duration time.Duration) {
	m.ExternalAPIDuration.
		WithLabelValues(operation, strconv.Itoa(status)).
		Observe(duration.Seconds())
}

func resultLabel(success bool) string {
	if success {
		return resultSuccess
	}
	return resultError
}
