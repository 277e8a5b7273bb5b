package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pulseboard/pulseboard/internal/model"
)

// Aggregation windows are half-open on the right except user stats,
// which use "now" as the inclusive upper bound.
const (
	activeUserWindow = 24 * time.Hour
	topUserLimit     = 10
	topEndpointLimit = 5
	recentEventLimit = 10
)

// typeTotals is one GROUP BY type row.
type typeTotals struct {
	Type  string
	Count int64
	Sum   float64
}

// UserStats aggregates one user's metrics over the trailing window of days.
func (r *MetricRepository) UserStats(ctx context.Context, userID string, days int) (*model.UserStats, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	query := `
		SELECT type, COUNT(*), COALESCE(SUM(value), 0)
		FROM metrics
		WHERE user_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		GROUP BY type
	`

	rows, err := r.repo.pool.Query(ctx, query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query user stats: %w", err)
	}
	defer rows.Close()

	totals, err := collectTypeTotals(rows)
	if err != nil {
		return nil, err
	}

	stats := buildUserStats(userID, days, totals)
	stats.PeriodStart = start
	stats.PeriodEnd = end
	return stats, nil
}

// buildUserStats folds per-type totals into a UserStats.
// AvgSessionDuration stays nil when no sessions were recorded.
func buildUserStats(userID string, days int, totals []typeTotals) *model.UserStats {
	stats := &model.UserStats{
		UserID: userID,
		Days:   days,
	}

	for _, t := range totals {
		switch t.Type {
		case model.MetricAPICall:
			stats.APICalls = t.Count
		case model.MetricToolExecution:
			stats.ToolExecutions = t.Count
		case model.MetricCost:
			stats.TotalCost = t.Sum
		case model.MetricSession:
			stats.Sessions = t.Count
			if t.Count > 0 {
				avg := t.Sum / float64(t.Count)
				stats.AvgSessionDuration = &avg
			}
		}
	}

	return stats
}

// SystemStats aggregates service-wide activity. The per-user averages and
// the peak hour cover the trailing 24 hours.
func (r *MetricRepository) SystemStats(ctx context.Context) (*model.SystemStats, error) {
	stats := &model.SystemStats{}
	since := time.Now().UTC().Add(-activeUserWindow)

	err := r.repo.pool.QueryRow(ctx, `SELECT COUNT(*) FROM metrics`).Scan(&stats.TotalMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to count metrics: %w", err)
	}

	err = r.repo.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM metrics WHERE recorded_at >= $1`,
		since,
	).Scan(&stats.ActiveUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to count active users: %w", err)
	}

	if stats.ActiveUsers > 0 {
		query := `
			SELECT COALESCE(AVG(total_cost), 0), COALESCE(AVG(api_calls), 0)
			FROM (
				SELECT
					SUM(CASE WHEN type = $2 THEN value ELSE 0 END) AS total_cost,
					COUNT(*) FILTER (WHERE type = $3) AS api_calls
				FROM metrics
				WHERE recorded_at >= $1
				GROUP BY user_id
			) per_user
		`
		err = r.repo.pool.QueryRow(ctx, query, since, model.MetricCost, model.MetricAPICall).
			Scan(&stats.CostPerUser, &stats.AvgAPICallsPerUser)
		if err != nil {
			return nil, fmt.Errorf("failed to compute per-user averages: %w", err)
		}
	}

	peak, err := r.peakUsageHour(ctx, since)
	if err != nil {
		return nil, err
	}
	stats.PeakUsageHour = peak

	return stats, nil
}

// peakUsageHour returns the busiest hour of day in the window, or nil
// when the window has no records.
func (r *MetricRepository) peakUsageHour(ctx context.Context, since time.Time) (*int, error) {
	query := `
		SELECT EXTRACT(HOUR FROM recorded_at)::int AS hour, COUNT(*) AS total
		FROM metrics
		WHERE recorded_at >= $1
		GROUP BY hour
		ORDER BY total DESC, hour ASC
		LIMIT 1
	`

	var (
		hour  int
		total int64
	)
	err := r.repo.pool.QueryRow(ctx, query, since).Scan(&hour, &total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to compute peak usage hour: %w", err)
	}

	return &hour, nil
}

// DailyReport aggregates one UTC calendar day. A day with no records
// yields zero totals and an empty leaderboard.
func (r *MetricRepository) DailyReport(ctx context.Context, date time.Time) (*model.DailyReport, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	report := &model.DailyReport{
		Date:        start.Format("2006-01-02"),
		TopUsers:    make([]model.TopUser, 0),
		GeneratedAt: time.Now().UTC(),
	}

	err := r.repo.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM metrics WHERE recorded_at >= $1 AND recorded_at < $2`,
		start, end,
	).Scan(&report.TotalUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to count daily users: %w", err)
	}

	rows, err := r.repo.pool.Query(ctx, `
		SELECT type, COUNT(*), COALESCE(SUM(value), 0)
		FROM metrics
		WHERE recorded_at >= $1 AND recorded_at < $2
		GROUP BY type
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily totals: %w", err)
	}
	defer rows.Close()

	totals, err := collectTypeTotals(rows)
	if err != nil {
		return nil, err
	}
	for _, t := range totals {
		switch t.Type {
		case model.MetricAPICall:
			report.TotalAPICalls = t.Count
		case model.MetricToolExecution:
			report.TotalToolExecutions = t.Count
		case model.MetricSession:
			report.TotalSessions = t.Count
		case model.MetricCost:
			report.TotalCost = t.Sum
		}
	}

	topRows, err := r.repo.pool.Query(ctx, `
		SELECT user_id, COUNT(*) AS activity, COALESCE(SUM(value), 0)
		FROM metrics
		WHERE recorded_at >= $1 AND recorded_at < $2
		GROUP BY user_id
		ORDER BY activity DESC, user_id ASC
		LIMIT $3
	`, start, end, topUserLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top users: %w", err)
	}
	defer topRows.Close()

	for topRows.Next() {
		var u model.TopUser
		if err := topRows.Scan(&u.UserID, &u.ActivityCount, &u.TotalValue); err != nil {
			return nil, fmt.Errorf("failed to scan top user: %w", err)
		}
		report.TopUsers = append(report.TopUsers, u)
	}
	if err := topRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate top users: %w", err)
	}

	return report, nil
}

// Dashboard aggregates the trailing window of hours for the operational
// overview. Total cost comes from the usage rollups, everything else
// from raw metrics.
func (r *MetricRepository) Dashboard(ctx context.Context, hours int) (*model.DashboardMetrics, error) {
	now := time.Now().UTC()
	since := now.Add(-time.Duration(hours) * time.Hour)

	dash := &model.DashboardMetrics{
		WindowHours:  hours,
		TopEndpoints: make([]model.EndpointCount, 0),
		RecentEvents: make([]model.Metric, 0),
	}

	query := `
		SELECT COUNT(*),
		       COUNT(DISTINCT user_id),
		       COUNT(*) FILTER (WHERE type = $2)
		FROM metrics
		WHERE recorded_at >= $1
	`
	err := r.repo.pool.QueryRow(ctx, query, since, model.MetricAPICall).
		Scan(&dash.TotalEvents, &dash.ActiveUsers, &dash.TotalAPICalls)
	if err != nil {
		return nil, fmt.Errorf("failed to query dashboard totals: %w", err)
	}

	err = r.repo.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM usage WHERE period_date >= $1`,
		since.Truncate(24*time.Hour),
	).Scan(&dash.TotalCost)
	if err != nil {
		return nil, fmt.Errorf("failed to query dashboard cost: %w", err)
	}

	endpointRows, err := r.repo.pool.Query(ctx, `
		SELECT metadata->>'endpoint' AS endpoint, COUNT(*) AS total
		FROM metrics
		WHERE recorded_at >= $1 AND metadata ? 'endpoint'
		GROUP BY endpoint
		ORDER BY total DESC, endpoint ASC
		LIMIT $2
	`, since, topEndpointLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top endpoints: %w", err)
	}
	defer endpointRows.Close()

	for endpointRows.Next() {
		var e model.EndpointCount
		if err := endpointRows.Scan(&e.Endpoint, &e.Count); err != nil {
			return nil, fmt.Errorf("failed to scan endpoint count: %w", err)
		}
		dash.TopEndpoints = append(dash.TopEndpoints, e)
	}
	if err := endpointRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate top endpoints: %w", err)
	}

	recent, err := r.QueryMetrics(ctx, model.MetricFilter{From: since, Limit: recentEventLimit})
	if err != nil {
		return nil, err
	}
	for _, m := range recent {
		dash.RecentEvents = append(dash.RecentEvents, *m)
	}

	return dash, nil
}

func collectTypeTotals(rows pgx.Rows) ([]typeTotals, error) {
	var totals []typeTotals
	for rows.Next() {
		var t typeTotals
		if err := rows.Scan(&t.Type, &t.Count, &t.Sum); err != nil {
			return nil, fmt.Errorf("failed to scan type totals: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate type totals: %w", err)
	}
	return totals, nil
}
