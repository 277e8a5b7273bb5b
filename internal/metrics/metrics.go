// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Account lifecycle
	IncUserRegistered()
	IncUserDeactivated()

	// Authentication
	IncLoginSuccess()
	IncLoginFailure()
	IncTokenVerified(status string) // status: "success" or "failure"

	// Ingest pipeline
	IncMetricRecorded()
	ObserveBatchSize(size int)
	IncEventPublished(status string) // status: "success" or "dropped"

	// Aggregation queries
	ObserveAggregationDuration(duration time.Duration)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
