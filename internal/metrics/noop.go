package metrics

import "time"

// NoopMetrics is a no-operation implementation of Recorder
type NoopMetrics struct{}

var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordTokenCheck(outcome string)                         {}
func (n *NoopMetrics) RecordTokenRefresh(success bool, duration time.Duration) {}
func (n *NoopMetrics) RecordOAuthCallback(success bool)                        {}
func (n *NoopMetrics) RecordOAuthState(result string)                          {}
func (n *NoopMetrics) RecordExternalAPICall(operation string, status int, duration time.Duration) {
}
