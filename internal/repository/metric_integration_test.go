//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pulseboard/pulseboard/internal/model"
	"github.com/pulseboard/pulseboard/internal/testutil"
)

func newMetricTestEnv(t *testing.T) (context.Context, *MetricRepository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetMetricsSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset metrics schema: %v", err)
	}
	// Dashboard reads the usage table too.
	if err := testutil.ResetUsageSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset usage schema: %v", err)
	}

	return ctx, NewMetricRepository(repo)
}

func TestIntegrationMetricRepository_InsertMetric(t *testing.T) {
	ctx, repo := newMetricTestEnv(t)

	m := testutil.NewTestMetric(model.MetricAPICall, "user-1", 1)
	if err := repo.InsertMetric(ctx, m); err != nil {
		t.Fatalf("InsertMetric failed: %v", err)
	}
	if m.ID == 0 {
		t.Error("ID should be populated")
	}

	stored, err := repo.QueryMetrics(ctx, model.MetricFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("QueryMetrics failed: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 metric, got %d", len(stored))
	}
	if stored[0].Metadata["service"] != "test-suite" {
		t.Errorf("metadata not preserved: %v", stored[0].Metadata)
	}
}

func TestIntegrationMetricRepository_InsertMetric_DefaultsTimestamp(t *testing.T) {
	ctx, repo := newMetricTestEnv(t)

	m := testutil.NewTestMetric(model.MetricAPICall, "user-1", 1)
	m.RecordedAt = time.Time{}

	if err := repo.InsertMetric(ctx, m); err != nil {
		t.Fatalf("InsertMetric failed: %v", err)
	}
	if m.RecordedAt.IsZero() {
		t.Error("RecordedAt should be defaulted")
	}
}

func TestIntegrationMetricRepository_InsertMetricBatch(t *testing.T) {
	ctx, repo := newMetricTestEnv(t)

	batch := []*model.Metric{
		testutil.NewTestMetric(model.MetricAPICall, "user-1", 1),
		testutil.NewTestMetric(model.MetricCost, "user-1", 0.05),
		testutil.NewTestMetric(model.MetricSession, "user-2", 600),
	}

	count, err := repo.InsertMetricBatch(ctx, batch)
	if err != nil {
		t.Fatalf("InsertMetricBatch failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	stored, err := repo.QueryMetrics(ctx, model.MetricFilter{})
	if err != nil {
		t.Fatalf("QueryMetrics failed: %v", err)
	}
	if len(stored) != 3 {
		t.Errorf("expected 3 metrics, got %d", len(stored))
	}
}

func TestIntegrationMetricRepository_InsertMetricBatch_FailureWritesNothing(t *testing.T) {
	ctx, repo := newMetricTestEnv(t)

	batch := []*model.Metric{
		testutil.NewTestMetric(model.MetricAPICall, "user-1", 1),
		{
			Type:   model.MetricAPICall,
			UserID: "user-1",
			// Channels cannot be serialized, so the batch fails before
			// anything is sent.
			Metadata:   map[string]any{"bad": make(chan int)},
			RecordedAt: time.Now().UTC(),
		},
	}

	if _, err := repo.InsertMetricBatch(ctx, batch); err == nil {
		t.Fatal("expected batch to fail")
	}

	stored, err := repo.QueryMetrics(ctx, model.MetricFilter{})
	if err != nil {
		t.Fatalf("QueryMetrics failed: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("expected 0 metrics after failed batch, got %d", len(stored))
	}
}

func TestIntegrationMetricRepository_QueryMetrics_Filters(t *testing.T) {
	ctx, repo := newMetricTestEnv(t)

	base := time.Now().UTC().Add(-time.Hour)
	rows := []*model.Metric{
		{Type: model.MetricAPICall, Value: 1, UserID: "user-1", Metadata: map[string]any{"service": "gateway"}, RecordedAt: base},
		{Type: model.MetricAPICall, Value: 1, UserID: "user-2", Metadata: map[string]any{"service": "worker"}, RecordedAt: base.Add(time.Minute)},
		{Type: model.MetricCost, Value: 0.1, UserID: "user-1", RecordedAt: base.Add(2 * time.Minute)},
	}
	for _, m := range rows {
		if err := repo.InsertMetric(ctx, m); err != nil {
			t.Fatalf("InsertMetric failed: %v", err)
		}
	}

	byType, err := repo.QueryMetrics(ctx, model.MetricFilter{Type: model.MetricAPICall})
	if err != nil {
		t.Fatalf("QueryMetrics by type failed: %v", err)
	}
	if len(byType) != 2 {
		t.Errorf("by type: got %d, want 2", len(byType))
	}

	byUser, err := repo.QueryMetrics(ctx, model.MetricFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("QueryMetrics by user failed: %v", err)
	}
	if len(byUser) != 2 {
		t.Errorf("by user: got %d, want 2", len(byUser))
	}

	byService, err := repo.QueryMetrics(ctx, model.MetricFilter{Service: "gateway"})
	if err != nil {
		t.Fatalf("QueryMetrics by service failed: %v", err)
	}
	if len(byService) != 1 {
		t.Errorf("by service: got %d, want 1", len(byService))
	}

	windowed, err := repo.QueryMetrics(ctx, model.MetricFilter{
		From: base.Add(30 * time.Second),
		To:   base.Add(90 * time.Second),
	})
	if err != nil {
		t.Fatalf("QueryMetrics by window failed: %v", err)
	}
	if len(windowed) != 1 {
		t.Errorf("by window: got %d, want 1", len(windowed))
	}
}

func TestIntegrationMetricRepository_QueryMetrics_NewestFirst(t *testing.T) {
	ctx, repo := newMetricTestEnv(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		m := testutil.NewTestMetric(model.MetricAPICall, "user-1", float64(i))
		m.RecordedAt = base.Add(time.Duration(i) * time.Minute)
		if err := repo.InsertMetric(ctx, m); err != nil {
			t.Fatalf("InsertMetric failed: %v", err)
		}
	}

	stored, err := repo.QueryMetrics(ctx, model.MetricFilter{Limit: 2})
	if err != nil {
		t.Fatalf("QueryMetrics failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("limit ignored: got %d", len(stored))
	}
	if stored[0].Value != 2 || stored[1].Value != 1 {
		t.Errorf("order = [%v %v], want newest first", stored[0].Value, stored[1].Value)
	}
}

func TestIntegrationMetricRepository_PurgeUserMetrics(t *testing.T) {
	ctx, repo := newMetricTestEnv(t)

	for _, userID := range []string{"doomed", "doomed", "kept"} {
		if err := repo.InsertMetric(ctx, testutil.NewTestMetric(model.MetricAPICall, userID, 1)); err != nil {
			t.Fatalf("InsertMetric failed: %v", err)
		}
	}

	deleted, err := repo.PurgeUserMetrics(ctx, "doomed")
	if err != nil {
		t.Fatalf("PurgeUserMetrics failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	remaining, err := repo.QueryMetrics(ctx, model.MetricFilter{})
	if err != nil {
		t.Fatalf("QueryMetrics failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].UserID != "kept" {
		t.Errorf("remaining = %v, want only the kept user", remaining)
	}
}

func TestIntegrationMetricRepository_UserStats(t *testing.T) {
	ctx, repo := newMetricTestEnv(t)

	now := time.Now().UTC()
	rows := []*model.Metric{
		{Type: model.MetricAPICall, Value: 1, UserID: "user-1", RecordedAt: now.Add(-time.Hour)},
		{Type: model.MetricAPICall, Value: 1, UserID: "user-1", RecordedAt: now.Add(-2 * time.Hour)},
		{Type: model.MetricSession, Value: 600, UserID: "user-1", RecordedAt: now.Add(-time.Hour)},
		{Type: model.MetricSession, Value: 1200, UserID: "user-1", RecordedAt: now.Add(-time.Hour)},
		{Type: model.MetricCost, Value: 0.30, UserID: "user-1", RecordedAt: now.Add(-time.Hour)},
		// Outside the window.
		{Type: model.MetricAPICall, Value: 1, UserID: "user-1", RecordedAt: now.AddDate(0, 0, -10)},
		// Another user.
		{Type: model.MetricAPICall, Value: 1, UserID: "user-2", RecordedAt: now.Add(-time.Hour)},
	}
	for _, m := range rows {
		if err := repo.InsertMetric(ctx, m); err != nil {
			t.Fatalf("InsertMetric failed: %v", err)
		}
	}

	stats, err := repo.UserStats(ctx, "user-1", 7)
	if err != nil {
		t.Fatalf("UserStats failed: %v", err)
	}

	if stats.APICalls != 2 {
		t.Errorf("APICalls = %d, want 2", stats.APICalls)
	}
	if stats.Sessions != 2 {
		t.Errorf("Sessions = %d, want 2", stats.Sessions)
	}
	if stats.AvgSessionDuration == nil || *stats.AvgSessionDuration != 900 {
		t.Errorf("AvgSessionDuration = %v, want 900", stats.AvgSessionDuration)
	}
	if stats.TotalCost != 0.30 {
		t.Errorf("TotalCost = %v, want 0.30", stats.TotalCost)
	}
}

func TestIntegrationMetricRepository_UserStats_NoSessions(t *testing.T) {
	ctx, repo := newMetricTestEnv(t)

	if err := repo.InsertMetric(ctx, testutil.NewTestMetric(model.MetricAPICall, "user-1", 1)); err != nil {
		t.Fatalf("InsertMetric failed: %v", err)
	}

	stats, err := repo.UserStats(ctx, "user-1", 7)
	if err != nil {
		t.Fatalf("UserStats failed: %v", err)
	}
	if stats.AvgSessionDuration != nil {
		t.Errorf("AvgSessionDuration = %v, want nil", *stats.AvgSessionDuration)
	}
}

func TestIntegrationMetricRepository_SystemStats(t *testing.T) {
	ctx, repo := newMetricTestEnv(t)

	now := time.Now().UTC()
	rows := []*model.Metric{
		{Type: model.MetricAPICall, Value: 1, UserID: "user-1", RecordedAt: now.Add(-time.Hour)},
		{Type: model.MetricAPICall, Value: 1, UserID: "user-2", RecordedAt: now.Add(-time.Hour)},
		{Type: model.MetricCost, Value: 0.50, UserID: "user-1", RecordedAt: now.Add(-time.Hour)},
		// Too old to count as active.
		{Type: model.MetricAPICall, Value: 1, UserID: "user-3", RecordedAt: now.AddDate(0, 0, -3)},
	}
	for _, m := range rows {
		if err := repo.InsertMetric(ctx, m); err != nil {
			t.Fatalf("InsertMetric failed: %v", err)
		}
	}

	stats, err := repo.SystemStats(ctx)
	if err != nil {
		t.Fatalf("SystemStats failed: %v", err)
	}

	if stats.TotalMetrics != 4 {
		t.Errorf("TotalMetrics = %d, want 4", stats.TotalMetrics)
	}
	if stats.ActiveUsers != 2 {
		t.Errorf("ActiveUsers = %d, want 2", stats.ActiveUsers)
	}
	if stats.CostPerUser != 0.25 {
		t.Errorf("CostPerUser = %v, want 0.25", stats.CostPerUser)
	}
	if stats.AvgAPICallsPerUser != 1 {
		t.Errorf("AvgAPICallsPerUser = %v, want 1", stats.AvgAPICallsPerUser)
	}
	if stats.PeakUsageHour == nil {
		t.Error("PeakUsageHour should be set when records exist")
	}
}

func TestIntegrationMetricRepository_SystemStats_Empty(t *testing.T) {
	ctx, repo := newMetricTestEnv(t)

	stats, err := repo.SystemStats(ctx)
	if err != nil {
		t.Fatalf("SystemStats failed: %v", err)
	}
	if stats.TotalMetrics != 0 || stats.ActiveUsers != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
	if stats.PeakUsageHour != nil {
		t.Errorf("PeakUsageHour = %v, want nil with no records", *stats.PeakUsageHour)
	}
}

func TestIntegrationMetricRepository_DailyReport(t *testing.T) {
	ctx, repo := newMetricTestEnv(t)

	day := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	rows := []*model.Metric{
		{Type: model.MetricAPICall, Value: 1, UserID: "user-1", RecordedAt: day.Add(3 * time.Hour)},
		{Type: model.MetricAPICall, Value: 1, UserID: "user-1", RecordedAt: day.Add(15 * time.Hour)},
		{Type: model.MetricSession, Value: 900, UserID: "user-2", RecordedAt: day.Add(10 * time.Hour)},
		{Type: model.MetricCost, Value: 0.75, UserID: "user-1", RecordedAt: day.Add(20 * time.Hour)},
		// The next day must not leak in.
		{Type: model.MetricAPICall, Value: 1, UserID: "user-1", RecordedAt: day.AddDate(0, 0, 1)},
		// Neither must the previous one.
		{Type: model.MetricAPICall, Value: 1, UserID: "user-3", RecordedAt: day.Add(-time.Second)},
	}
	for _, m := range rows {
		if err := repo.InsertMetric(ctx, m); err != nil {
			t.Fatalf("InsertMetric failed: %v", err)
		}
	}

	report, err := repo.DailyReport(ctx, day.Add(13*time.Hour))
	if err != nil {
		t.Fatalf("DailyReport failed: %v", err)
	}

	if report.Date != "2026-08-15" {
		t.Errorf("Date = %q, want 2026-08-15", report.Date)
	}
	if report.TotalUsers != 2 {
		t.Errorf("TotalUsers = %d, want 2", report.TotalUsers)
	}
	if report.TotalAPICalls != 2 {
		t.Errorf("TotalAPICalls = %d, want 2", report.TotalAPICalls)
	}
	if report.TotalSessions != 1 {
		t.Errorf("TotalSessions = %d, want 1", report.TotalSessions)
	}
	if report.TotalCost != 0.75 {
		t.Errorf("TotalCost = %v, want 0.75", report.TotalCost)
	}
	if len(report.TopUsers) != 2 {
		t.Fatalf("TopUsers = %d, want 2", len(report.TopUsers))
	}
	if report.TopUsers[0].UserID != "user-1" || report.TopUsers[0].ActivityCount != 3 {
		t.Errorf("top user = %+v, want user-1 with 3", report.TopUsers[0])
	}
}

func TestIntegrationMetricRepository_Dashboard(t *testing.T) {
	ctx, repo := newMetricTestEnv(t)
	usage := NewUsageRepository(repo.repo)

	now := time.Now().UTC()
	rows := []*model.Metric{
		{Type: model.MetricAPICall, Value: 1, UserID: "user-1", Metadata: map[string]any{"endpoint": "/v1/chat"}, RecordedAt: now.Add(-time.Hour)},
		{Type: model.MetricAPICall, Value: 1, UserID: "user-1", Metadata: map[string]any{"endpoint": "/v1/chat"}, RecordedAt: now.Add(-time.Hour)},
		{Type: model.MetricAPICall, Value: 1, UserID: "user-2", Metadata: map[string]any{"endpoint": "/v1/embed"}, RecordedAt: now.Add(-time.Hour)},
		{Type: model.MetricToolExecution, Value: 1, UserID: "user-2", RecordedAt: now.Add(-time.Hour)},
	}
	for _, m := range rows {
		if err := repo.InsertMetric(ctx, m); err != nil {
			t.Fatalf("InsertMetric failed: %v", err)
		}
	}

	rec := testutil.NewTestUsage(1, now)
	rec.CostUSD = 1.25
	if err := usage.UpsertUsage(ctx, rec); err != nil {
		t.Fatalf("UpsertUsage failed: %v", err)
	}

	dash, err := repo.Dashboard(ctx, 24)
	if err != nil {
		t.Fatalf("Dashboard failed: %v", err)
	}

	if dash.TotalEvents != 4 {
		t.Errorf("TotalEvents = %d, want 4", dash.TotalEvents)
	}
	if dash.ActiveUsers != 2 {
		t.Errorf("ActiveUsers = %d, want 2", dash.ActiveUsers)
	}
	if dash.TotalAPICalls != 3 {
		t.Errorf("TotalAPICalls = %d, want 3", dash.TotalAPICalls)
	}
	if dash.TotalCost != 1.25 {
		t.Errorf("TotalCost = %v, want 1.25", dash.TotalCost)
	}
	if len(dash.TopEndpoints) != 2 {
		t.Fatalf("TopEndpoints = %d, want 2", len(dash.TopEndpoints))
	}
	if dash.TopEndpoints[0].Endpoint != "/v1/chat" || dash.TopEndpoints[0].Count != 2 {
		t.Errorf("top endpoint = %+v, want /v1/chat with 2", dash.TopEndpoints[0])
	}
	if len(dash.RecentEvents) != 4 {
		t.Errorf("RecentEvents = %d, want 4", len(dash.RecentEvents))
	}
}
