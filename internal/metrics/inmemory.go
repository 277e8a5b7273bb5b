package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	UsersRegistered            uint64
	UsersDeactivated           uint64
	LoginSuccesses             uint64
	LoginFailures              uint64
	TokensVerified             uint64
	TokensRejected             uint64
	MetricsRecorded            uint64
	BatchCount                 uint64
	BatchItemsTotal            uint64
	EventsPublished            uint64
	EventsDropped              uint64
	AggregationCount           uint64
	AggregationDurationTotalNs int64
}

// InMemoryRecorder stores metrics in memory. Used by the /metrics
// endpoint and by tests.
type InMemoryRecorder struct {
	usersRegistered            uint64
	usersDeactivated           uint64
	loginSuccesses             uint64
	loginFailures              uint64
	tokensVerified             uint64
	tokensRejected             uint64
	metricsRecorded            uint64
	batchCount                 uint64
	batchItemsTotal            uint64
	eventsPublished            uint64
	eventsDropped              uint64
	aggregationCount           uint64
	aggregationDurationTotalNs int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		UsersRegistered:            atomic.LoadUint64(&m.usersRegistered),
		UsersDeactivated:           atomic.LoadUint64(&m.usersDeactivated),
		LoginSuccesses:             atomic.LoadUint64(&m.loginSuccesses),
		LoginFailures:              atomic.LoadUint64(&m.loginFailures),
		TokensVerified:             atomic.LoadUint64(&m.tokensVerified),
		TokensRejected:             atomic.LoadUint64(&m.tokensRejected),
		MetricsRecorded:            atomic.LoadUint64(&m.metricsRecorded),
		BatchCount:                 atomic.LoadUint64(&m.batchCount),
		BatchItemsTotal:            atomic.LoadUint64(&m.batchItemsTotal),
		EventsPublished:            atomic.LoadUint64(&m.eventsPublished),
		EventsDropped:              atomic.LoadUint64(&m.eventsDropped),
		AggregationCount:           atomic.LoadUint64(&m.aggregationCount),
		AggregationDurationTotalNs: atomic.LoadInt64(&m.aggregationDurationTotalNs),
	}
}

// IncUserRegistered increments the registration counter.
func (m *InMemoryRecorder) IncUserRegistered() {
	atomic.AddUint64(&m.usersRegistered, 1)
}

// IncUserDeactivated increments the deactivation counter.
func (m *InMemoryRecorder) IncUserDeactivated() {
	atomic.AddUint64(&m.usersDeactivated, 1)
}

// IncLoginSuccess increments the successful login counter.
func (m *InMemoryRecorder) IncLoginSuccess() {
	atomic.AddUint64(&m.loginSuccesses, 1)
}

// IncLoginFailure increments the failed login counter.
func (m *InMemoryRecorder) IncLoginFailure() {
	atomic.AddUint64(&m.loginFailures, 1)
}

// IncTokenVerified counts token verification outcomes.
func (m *InMemoryRecorder) IncTokenVerified(status string) {
	if status == "success" {
		atomic.AddUint64(&m.tokensVerified, 1)
		return
	}
	atomic.AddUint64(&m.tokensRejected, 1)
}

// IncMetricRecorded increments the ingest counter.
func (m *InMemoryRecorder) IncMetricRecorded() {
	atomic.AddUint64(&m.metricsRecorded, 1)
}

// ObserveBatchSize records one accepted batch and its size.
func (m *InMemoryRecorder) ObserveBatchSize(size int) {
	atomic.AddUint64(&m.batchCount, 1)
	if size > 0 {
		atomic.AddUint64(&m.batchItemsTotal, uint64(size))
	}
}

// IncEventPublished counts recent-event sink outcomes.
func (m *InMemoryRecorder) IncEventPublished(status string) {
	if status == "success" {
		atomic.AddUint64(&m.eventsPublished, 1)
		return
	}
	atomic.AddUint64(&m.eventsDropped, 1)
}

// ObserveAggregationDuration records one aggregation query.
func (m *InMemoryRecorder) ObserveAggregationDuration(duration time.Duration) {
	atomic.AddUint64(&m.aggregationCount, 1)
	atomic.AddInt64(&m.aggregationDurationTotalNs, duration.Nanoseconds())
}
