package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/model"
)

// eventSinkTimeout bounds the best-effort publish so a slow Redis never
// delays the ingest response.
const eventSinkTimeout = 100 * time.Millisecond

// ErrInvalidMetric is returned for metrics missing required fields or
// carrying non-finite values.
var ErrInvalidMetric = errors.New("invalid metric")

// MetricStore is the persistence and aggregation surface over raw metrics.
type MetricStore interface {
	InsertMetric(ctx context.Context, m *model.Metric) error
	InsertMetricBatch(ctx context.Context, metrics []*model.Metric) (int, error)
	QueryMetrics(ctx context.Context, filter model.MetricFilter) ([]*model.Metric, error)
	PurgeUserMetrics(ctx context.Context, userID string) (int64, error)
	UserStats(ctx context.Context, userID string, days int) (*model.UserStats, error)
	SystemStats(ctx context.Context) (*model.SystemStats, error)
	DailyReport(ctx context.Context, date time.Time) (*model.DailyReport, error)
	Dashboard(ctx context.Context, hours int) (*model.DashboardMetrics, error)
}

// UsageStore is the persistence surface over pre-aggregated rollups.
type UsageStore interface {
	UpsertUsage(ctx context.Context, rec *model.UsageRecord) error
	ListUsage(ctx context.Context, userID int64, periodType string, days int) ([]*model.UsageRecord, error)
	CostBreakdown(ctx context.Context, userID *int64, days int) (*model.CostBreakdown, error)
}

// EventSink receives successfully stored metrics for the recent-events
// view. Implementations must tolerate being skipped: the sink is a
// convenience, not a source of truth.
type EventSink interface {
	PushRecentEvent(ctx context.Context, m model.Metric) error
	RecentEvents(ctx context.Context, limit int) ([]model.Metric, error)
}

// noopSink drops every event. Used when no cache is wired up.
type noopSink struct{}

func (noopSink) PushRecentEvent(context.Context, model.Metric) error { return nil }
func (noopSink) RecentEvents(context.Context, int) ([]model.Metric, error) {
	return []model.Metric{}, nil
}

// AnalyticsService implements metric ingest and aggregation.
type AnalyticsService struct {
	store   MetricStore
	usage   UsageStore
	events  EventSink
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewAnalyticsService creates an AnalyticsService. A nil sink disables
// the recent-events view.
func NewAnalyticsService(store MetricStore, usage UsageStore, events EventSink, logger *slog.Logger, recorder metrics.Recorder) *AnalyticsService {
	if events == nil {
		events = noopSink{}
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AnalyticsService{
		store:   store,
		usage:   usage,
		events:  events,
		logger:  logger.With("component", "analytics_service"),
		metrics: recorder,
	}
}

// RecordEvent validates and stores one metric, then feeds the
// recent-events sink. Sink failures are logged and swallowed.
func (s *AnalyticsService) RecordEvent(ctx context.Context, m *model.Metric) error {
	if err := validateMetric(m); err != nil {
		return err
	}
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now().UTC()
	}

	if err := s.store.InsertMetric(ctx, m); err != nil {
		return err
	}
	s.metrics.IncMetricRecorded()

	s.publishRecentEvent(*m)
	return nil
}

// RecordMetricBatch stores all metrics atomically and returns a batch id
// for log correlation along with the number written.
func (s *AnalyticsService) RecordMetricBatch(ctx context.Context, batch []*model.Metric) (string, int, error) {
	if len(batch) == 0 {
		return "", 0, fmt.Errorf("%w: empty batch", ErrInvalidMetric)
	}
	for _, m := range batch {
		if err := validateMetric(m); err != nil {
			return "", 0, err
		}
	}

	batchID := ulid.Make().String()

	count, err := s.store.InsertMetricBatch(ctx, batch)
	if err != nil {
		return "", 0, err
	}

	s.metrics.ObserveBatchSize(count)
	s.logger.Info("metric batch recorded", "batch_id", batchID, "count", count)

	return batchID, count, nil
}

// QueryMetrics returns stored metrics matching the filter, newest first.
func (s *AnalyticsService) QueryMetrics(ctx context.Context, filter model.MetricFilter) ([]*model.Metric, error) {
	return s.store.QueryMetrics(ctx, filter)
}

// UserStats aggregates one user's activity over the trailing days.
func (s *AnalyticsService) UserStats(ctx context.Context, userID string, days int) (*model.UserStats, error) {
	defer s.observeAggregation(time.Now())
	return s.store.UserStats(ctx, userID, days)
}

// SystemStats aggregates service-wide activity.
func (s *AnalyticsService) SystemStats(ctx context.Context) (*model.SystemStats, error) {
	defer s.observeAggregation(time.Now())
	return s.store.SystemStats(ctx)
}

// DailyReport aggregates one UTC calendar day.
func (s *AnalyticsService) DailyReport(ctx context.Context, date time.Time) (*model.DailyReport, error) {
	defer s.observeAggregation(time.Now())
	return s.store.DailyReport(ctx, date)
}

// CostBreakdown aggregates usage rollups, optionally for one user.
func (s *AnalyticsService) CostBreakdown(ctx context.Context, userID *int64, days int) (*model.CostBreakdown, error) {
	defer s.observeAggregation(time.Now())
	return s.usage.CostBreakdown(ctx, userID, days)
}

// Dashboard builds the operational overview for the trailing hours.
func (s *AnalyticsService) Dashboard(ctx context.Context, hours int) (*model.DashboardMetrics, error) {
	defer s.observeAggregation(time.Now())
	return s.store.Dashboard(ctx, hours)
}

// UpsertUsage stores one pre-aggregated rollup.
func (s *AnalyticsService) UpsertUsage(ctx context.Context, rec *model.UsageRecord) error {
	if rec.PeriodType != model.PeriodDaily && rec.PeriodType != model.PeriodMonthly {
		return fmt.Errorf("%w: bad period type %q", ErrInvalidMetric, rec.PeriodType)
	}
	if rec.APICalls < 0 || rec.TokensUsed < 0 || rec.CostUSD < 0 {
		return fmt.Errorf("%w: negative usage counters", ErrInvalidMetric)
	}
	return s.usage.UpsertUsage(ctx, rec)
}

// ListUsage returns one user's rollups, newest first.
func (s *AnalyticsService) ListUsage(ctx context.Context, userID int64, periodType string, days int) ([]*model.UsageRecord, error) {
	return s.usage.ListUsage(ctx, userID, periodType, days)
}

// RecentEvents serves the cached recent-events view, falling back to
// the store when the cache is empty or unavailable.
func (s *AnalyticsService) RecentEvents(ctx context.Context, limit int) ([]model.Metric, error) {
	cached, err := s.events.RecentEvents(ctx, limit)
	if err == nil && len(cached) > 0 {
		return cached, nil
	}
	if err != nil {
		s.logger.Warn("recent events cache read failed", "error", err)
	}

	stored, err := s.store.QueryMetrics(ctx, model.MetricFilter{Limit: limit})
	if err != nil {
		return nil, err
	}

	events := make([]model.Metric, 0, len(stored))
	for _, m := range stored {
		events = append(events, *m)
	}
	return events, nil
}

// PurgeUser removes every metric recorded for a user id.
func (s *AnalyticsService) PurgeUser(ctx context.Context, userID string) (int64, error) {
	deleted, err := s.store.PurgeUserMetrics(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("user metrics purged", "user_id", userID, "deleted", deleted)
	return deleted, nil
}

// publishRecentEvent pushes to the sink with its own short deadline.
// The parent request context is deliberately not reused: the write
// should finish even when the client disconnects right after ingest.
func (s *AnalyticsService) publishRecentEvent(m model.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), eventSinkTimeout)
	defer cancel()

	if err := s.events.PushRecentEvent(ctx, m); err != nil {
		s.metrics.IncEventPublished("dropped")
		s.logger.Warn("recent event dropped", "error", err, "metric_type", m.Type)
		return
	}
	s.metrics.IncEventPublished("success")
}

func validateMetric(m *model.Metric) error {
	if m == nil {
		return fmt.Errorf("%w: nil metric", ErrInvalidMetric)
	}
	if m.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidMetric)
	}
	if m.UserID == "" {
		return fmt.Errorf("%w: missing user_id", ErrInvalidMetric)
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return fmt.Errorf("%w: non-finite value", ErrInvalidMetric)
	}
	return nil
}

// observeAggregation records how long an aggregation query took.
func (s *AnalyticsService) observeAggregation(start time.Time) {
	s.metrics.ObserveAggregationDuration(time.Since(start))
}
