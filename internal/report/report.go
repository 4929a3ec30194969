// Package report forwards terminal errors to an observability sink before
// they are surfaced to callers.
package report

import (
	"context"
	"errors"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// Fields is diagnostic context attached to a report. Never put raw token
// values in it.
type Fields map[string]any

// Reporter is the report(error, context) contract.
type Reporter interface {
	Report(ctx context.Context, err error, fields Fields)
}

// Kinded is implemented by errors that carry a stable machine-readable kind.
type Kinded interface {
	Kind() string
}

func kindOf(err error) string {
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return "internal"
}

// LogReporter writes reports to a zap logger.
type LogReporter struct {
	logger *zap.Logger
}

func NewLogReporter(logger *zap.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Report(_ context.Context, err error, fields Fields) {
	if err == nil {
		return
	}
	zf := make([]zap.Field, 0, len(fields)+2)
	zf = append(zf, zap.Error(err), zap.String("kind", kindOf(err)))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	r.logger.Error("terminal error", zf...)
}

// SentryReporter captures reports as Sentry events on the given hub.
type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter initialises the Sentry client and returns a reporter
// bound to the current hub.
func NewSentryReporter(dsn, environment, release string) (*SentryReporter, error) {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	}); err != nil {
		return nil, err
	}
	return &SentryReporter{hub: sentry.CurrentHub()}, nil
}

// NewSentryReporterWithHub wraps an existing hub.
func NewSentryReporterWithHub(hub *sentry.Hub) *SentryReporter {
	return &SentryReporter{hub: hub}
}

func (r *SentryReporter) Report(ctx context.Context, err error, fields Fields) {
	if err == nil {
		return
	}
	hub := r.hub
	if h := sentry.GetHubFromContext(ctx); h != nil {
		hub = h
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("kind", kindOf(err))
		for k, v := range fields {
			scope.SetExtra(k, v)
		}
		hub.CaptureException(err)
	})
}

// Flush waits for buffered events to be delivered.
func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}

// Multi fans a report out to every reporter.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, err error, fields Fields) {
	for _, r := range m {
		r.Report(ctx, err, fields)
	}
}

// Nop discards reports.
type Nop struct{}

func (Nop) Report(context.Context, error, Fields) {}
