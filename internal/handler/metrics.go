package handler

import (
	"fmt"
	"net/http"

	"github.com/pulseboard/pulseboard/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "pulseboard_users_registered_total %d\n", snap.UsersRegistered)
	writeMetric(w, "pulseboard_users_deactivated_total %d\n", snap.UsersDeactivated)

	writeMetric(w, "pulseboard_logins_total{status=\"success\"} %d\n", snap.LoginSuccesses)
	writeMetric(w, "pulseboard_logins_total{status=\"failure\"} %d\n", snap.LoginFailures)
	writeMetric(w, "pulseboard_token_verifications_total{status=\"success\"} %d\n", snap.TokensVerified)
	writeMetric(w, "pulseboard_token_verifications_total{status=\"failure\"} %d\n", snap.TokensRejected)

	writeMetric(w, "pulseboard_metrics_recorded_total %d\n", snap.MetricsRecorded)
	writeMetric(w, "pulseboard_metric_batches_total %d\n", snap.BatchCount)
	writeMetric(w, "pulseboard_metric_batch_items_total %d\n", snap.BatchItemsTotal)

	writeMetric(w, "pulseboard_recent_events_published_total{status=\"success\"} %d\n", snap.EventsPublished)
	writeMetric(w, "pulseboard_recent_events_published_total{status=\"dropped\"} %d\n", snap.EventsDropped)

	writeMetric(w, "pulseboard_aggregation_duration_seconds_count %d\n", snap.AggregationCount)
	writeMetric(w, "pulseboard_aggregation_duration_seconds_sum %.6f\n", float64(snap.AggregationDurationTotalNs)/1e9)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
