package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type kindedErr struct{}

func (kindedErr) Error() string { return "reauth needed" }
func (kindedErr) Kind() string  { return "reauth_required" }

type recordingTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *recordingTransport) Configure(sentry.ClientOptions) {}
func (t *recordingTransport) SendEvent(e *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}
func (t *recordingTransport) Flush(time.Duration) bool { return true }
func (t *recordingTransport) FlushWithContext(context.Context) bool { return true }
func (t *recordingTransport) Close()                                {}

func TestLogReporter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := NewLogReporter(zap.New(core))

	r.Report(context.Background(), fmt.Errorf("wrapped: %w", kindedErr{}), Fields{"step": "refresh"})
	r.Report(context.Background(), nil, nil)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	ctx := entry.ContextMap()
	assert.Equal(t, "reauth_required", ctx["kind"])
	assert.Equal(t, "refresh", ctx["step"])
	assert.Equal(t, "wrapped: reauth needed", ctx["error"])
}

func TestSentryReporter(t *testing.T) {
	transport := &recordingTransport{}
	client, err := sentry.NewClient(sentry.ClientOptions{Transport: transport})
	require.NoError(t, err)
	hub := sentry.NewHub(client, sentry.NewScope())

	r := NewSentryReporterWithHub(hub)
	r.Report(context.Background(), errors.New("boom"), Fields{"realm": "9130"})

	transport.mu.Lock()
	defer transport.mu.Unlock()
	require.Len(t, transport.events, 1)
	ev := transport.events[0]
	assert.Equal(t, "internal", ev.Tags["kind"])
	assert.Equal(t, "9130", ev.Extra["realm"])
	require.NotEmpty(t, ev.Exception)
	assert.Equal(t, "boom", ev.Exception[len(ev.Exception)-1].Value)
}

type countingReporter struct{ n int }

func (c *countingReporter) Report(context.Context, error, Fields) { c.n++ }

func TestMulti(t *testing.T) {
	a, b := &countingReporter{}, &countingReporter{}
	Multi{a, b, Nop{}}.Report(context.Background(), errors.New("x"), nil)
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)
}
