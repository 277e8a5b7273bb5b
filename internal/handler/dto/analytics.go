package dto

import (
	"time"

	"github.com/pulseboard/pulseboard/internal/model"
)

// EventRequest is the body of POST /analytics/events. The metric type
// arrives as "type"; "event_type" is accepted as an alias for older
// ingest clients.
type EventRequest struct {
	Type      string         `json:"type"`
	EventType string         `json:"event_type"`
	Value     float64        `json:"value"`
	UserID    string         `json:"user_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
}

// ToMetric maps an event request to a metric row.
func (r *EventRequest) ToMetric() *model.Metric {
	metricType := r.Type
	if metricType == "" {
		metricType = r.EventType
	}

	m := &model.Metric{
		Type:     metricType,
		Value:    r.Value,
		UserID:   r.UserID,
		Metadata: r.Metadata,
	}
	if r.Timestamp != nil {
		m.RecordedAt = *r.Timestamp
	}
	return m
}

// MetricRequest is the body of POST /analytics/metrics. Metric names are
// open strings; service, endpoint and labels are folded into metadata.
type MetricRequest struct {
	MetricName  string            `json:"metric_name"`
	MetricValue float64           `json:"metric_value"`
	UserID      string            `json:"user_id"`
	ServiceName string            `json:"service_name,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Timestamp   *time.Time        `json:"timestamp,omitempty"`
}

// ToMetric maps a metric request to a metric row.
func (r *MetricRequest) ToMetric() *model.Metric {
	metadata := make(map[string]any, len(r.Labels)+2)
	for k, v := range r.Labels {
		metadata[k] = v
	}
	if r.ServiceName != "" {
		metadata["service"] = r.ServiceName
	}
	if r.Endpoint != "" {
		metadata["endpoint"] = r.Endpoint
	}
	if len(metadata) == 0 {
		metadata = nil
	}

	m := &model.Metric{
		Type:     r.MetricName,
		Value:    r.MetricValue,
		UserID:   r.UserID,
		Metadata: metadata,
	}
	if r.Timestamp != nil {
		m.RecordedAt = *r.Timestamp
	}
	return m
}

// BatchRequest is the body of POST /analytics/metrics/batch.
type BatchRequest struct {
	Metrics []MetricRequest `json:"metrics"`
}

// BatchResponse acknowledges an accepted batch.
type BatchResponse struct {
	BatchID string `json:"batch_id"`
	Count   int    `json:"count"`
}

// MetricListResponse wraps a metric query result.
type MetricListResponse struct {
	Metrics []*model.Metric `json:"metrics"`
	Count   int             `json:"count"`
}

// UsageRequest is the body of POST /analytics/usage.
type UsageRequest struct {
	UserID     int64   `json:"user_id"`
	PeriodDate string  `json:"period_date"`
	PeriodType string  `json:"period_type"`
	APICalls   int64   `json:"api_calls_count"`
	TokensUsed int64   `json:"tokens_used"`
	CostUSD    float64 `json:"cost_usd"`
}

// UsageListResponse wraps a usage rollup listing.
type UsageListResponse struct {
	UserID  int64                `json:"user_id"`
	Records []*model.UsageRecord `json:"records"`
	Count   int                  `json:"count"`
}

// RecentEventsResponse wraps the recent-events view.
type RecentEventsResponse struct {
	Events []model.Metric `json:"events"`
	Count  int            `json:"count"`
}

// PurgeResponse acknowledges a metrics purge.
type PurgeResponse struct {
	UserID  string `json:"user_id"`
	Deleted int64  `json:"deleted"`
}
