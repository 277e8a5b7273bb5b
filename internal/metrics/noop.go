package metrics

import "time"

// NoopRecorder discards all metrics.
type NoopRecorder struct{}

// NewNoop returns a Recorder that does nothing.
func NewNoop() *NoopRecorder {
	return &NoopRecorder{}
}

func (NoopRecorder) IncUserRegistered()                       {}
func (NoopRecorder) IncUserDeactivated()                      {}
func (NoopRecorder) IncLoginSuccess()                         {}
func (NoopRecorder) IncLoginFailure()                         {}
func (NoopRecorder) IncTokenVerified(status string)           {}
func (NoopRecorder) IncMetricRecorded()                       {}
func (NoopRecorder) ObserveBatchSize(size int)                {}
func (NoopRecorder) IncEventPublished(status string)          {}
func (NoopRecorder) ObserveAggregationDuration(time.Duration) {}
