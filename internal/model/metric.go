package model

import "time"

// Well-known metric types. The column is an open string so ad-hoc
// metric names from the ingest path are stored as-is.
const (
	MetricAPICall       = "api_call"
	MetricToolExecution = "tool_execution"
	MetricCost          = "cost"
	MetricSession       = "session"
	MetricError         = "error"
)

// Metric is a single usage event or measurement.
// UserID is a free-form string and is not a foreign key into users;
// ingest accepts events for identities this service never registered.
type Metric struct {
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	Value      float64        `json:"value"`
	UserID     string         `json:"user_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// MetricFilter narrows metric queries. Zero values mean "no filter".
type MetricFilter struct {
	Type    string
	UserID  string
	Service string
	From    time.Time
	To      time.Time
	Limit   int
}
