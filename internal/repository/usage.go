package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/pulseboard/pulseboard/internal/model"
)

// UsageRepository handles pre-aggregated usage rollups.
type UsageRepository struct {
	repo *Repository
}

// NewUsageRepository creates a UsageRepository on top of the base Repository.
func NewUsageRepository(repo *Repository) *UsageRepository {
	return &UsageRepository{repo: repo}
}

// UpsertUsage inserts or replaces the rollup for (user, date, period).
// Counters are replaced, not added: the caller owns the rollup math.
func (r *UsageRepository) UpsertUsage(ctx context.Context, rec *model.UsageRecord) error {
	query := `
		INSERT INTO usage (user_id, period_date, period_type, api_calls_count, tokens_used, cost_usd)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, period_date, period_type)
		DO UPDATE SET
			api_calls_count = EXCLUDED.api_calls_count,
			tokens_used     = EXCLUDED.tokens_used,
			cost_usd        = EXCLUDED.cost_usd,
			updated_at      = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.repo.pool.QueryRow(ctx, query,
		rec.UserID,
		rec.PeriodDate,
		rec.PeriodType,
		rec.APICalls,
		rec.TokensUsed,
		rec.CostUSD,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert usage record: %w", err)
	}

	return nil
}

// ListUsage returns one user's rollups for the trailing window of days,
// newest first. An empty periodType matches all periods.
func (r *UsageRepository) ListUsage(ctx context.Context, userID int64, periodType string, days int) ([]*model.UsageRecord, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)

	query := `
		SELECT id, user_id, period_date, period_type, api_calls_count, tokens_used, cost_usd, created_at, updated_at
		FROM usage
		WHERE user_id = $1 AND period_date >= $2 AND ($3 = '' OR period_type = $3)
		ORDER BY period_date DESC
	`

	rows, err := r.repo.pool.Query(ctx, query, userID, since, periodType)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	defer rows.Close()

	records := make([]*model.UsageRecord, 0)
	for rows.Next() {
		rec := &model.UsageRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.PeriodDate,
			&rec.PeriodType,
			&rec.APICalls,
			&rec.TokensUsed,
			&rec.CostUSD,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage records: %w", err)
	}

	return records, nil
}

// CostBreakdown aggregates usage rollups over the trailing window of days.
// A nil userID covers every user; per-unit rates are 0 when the
// denominator is zero.
func (r *UsageRepository) CostBreakdown(ctx context.Context, userID *int64, days int) (*model.CostBreakdown, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	query := `
		SELECT user_id,
		       COALESCE(SUM(cost_usd), 0),
		       COALESCE(SUM(tokens_used), 0),
		       COALESCE(SUM(api_calls_count), 0)
		FROM usage
		WHERE period_date >= $1 AND period_date <= $2 AND ($3::bigint IS NULL OR user_id = $3)
		GROUP BY user_id
		ORDER BY SUM(cost_usd) DESC
	`

	rows, err := r.repo.pool.Query(ctx, query, start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost breakdown: %w", err)
	}
	defer rows.Close()

	perUser := make([]model.UserCost, 0)
	for rows.Next() {
		var uc model.UserCost
		if err := rows.Scan(&uc.UserID, &uc.TotalCost, &uc.TotalTokens, &uc.TotalAPICalls); err != nil {
			return nil, fmt.Errorf("failed to scan user cost: %w", err)
		}
		perUser = append(perUser, uc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cost breakdown: %w", err)
	}

	breakdown := finishCostBreakdown(perUser, days)
	breakdown.PeriodStart = start
	breakdown.PeriodEnd = end
	return breakdown, nil
}

// finishCostBreakdown computes window totals and derived per-unit rates
// from the per-user aggregates.
func finishCostBreakdown(perUser []model.UserCost, days int) *model.CostBreakdown {
	summary := model.CostSummary{PeriodDays: days}
	for _, uc := range perUser {
		summary.TotalCostUSD += uc.TotalCost
		summary.TotalTokens += uc.TotalTokens
		summary.TotalAPICalls += uc.TotalAPICalls
	}

	if summary.TotalTokens > 0 {
		summary.CostPerToken = summary.TotalCostUSD / float64(summary.TotalTokens)
	}
	if summary.TotalAPICalls > 0 {
		summary.CostPerAPICall = summary.TotalCostUSD / float64(summary.TotalAPICalls)
	}

	return &model.CostBreakdown{
		Summary:       summary,
		UserBreakdown: perUser,
	}
}
