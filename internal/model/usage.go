package model

import "time"

// Usage rollup period types.
const (
	PeriodDaily   = "daily"
	PeriodMonthly = "monthly"
)

// UsageRecord is a pre-aggregated usage rollup for one user and period.
// Rows are upserted: re-submitting the same (user, date, period) replaces
// the counters instead of creating a duplicate.
type UsageRecord struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	PeriodDate time.Time `json:"period_date"`
	PeriodType string    `json:"period_type"`
	APICalls   int64     `json:"api_calls_count"`
	TokensUsed int64     `json:"tokens_used"`
	CostUSD    float64   `json:"cost_usd"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
