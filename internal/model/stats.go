package model

import "time"

// UserStats summarizes one user's activity over a trailing window.
// AvgSessionDuration is nil (omitted from JSON) when no sessions were
// recorded; it is never reported as zero in that case.
type UserStats struct {
	UserID             string    `json:"user_id"`
	Days               int       `json:"days"`
	APICalls           int64     `json:"api_calls"`
	ToolExecutions     int64     `json:"tool_executions"`
	Sessions           int64     `json:"sessions"`
	TotalCost          float64   `json:"total_cost"`
	AvgSessionDuration *float64  `json:"avg_session_duration,omitempty"`
	PeriodStart        time.Time `json:"period_start"`
	PeriodEnd          time.Time `json:"period_end"`
}

// SystemStats summarizes service-wide activity. Per-user averages cover
// the set of users active in the trailing 24 hours; PeakUsageHour is the
// busiest hour of day (0-23) in that window, nil when there were no
// records at all.
type SystemStats struct {
	TotalMetrics       int64   `json:"total_metrics"`
	ActiveUsers        int64   `json:"active_users"`
	CostPerUser        float64 `json:"cost_per_user"`
	AvgAPICallsPerUser float64 `json:"avg_api_calls_per_user"`
	PeakUsageHour      *int    `json:"peak_usage_hour,omitempty"`
}

// TopUser is one row of a daily report leaderboard.
type TopUser struct {
	UserID        string  `json:"user_id"`
	ActivityCount int64   `json:"activity_count"`
	TotalValue    float64 `json:"total_value"`
}

// DailyReport covers one UTC calendar day.
type DailyReport struct {
	Date                string    `json:"date"`
	TotalUsers          int64     `json:"total_users"`
	TotalAPICalls       int64     `json:"total_api_calls"`
	TotalToolExecutions int64     `json:"total_tool_executions"`
	TotalSessions       int64     `json:"total_sessions"`
	TotalCost           float64   `json:"total_cost"`
	TopUsers            []TopUser `json:"top_users"`
	GeneratedAt         time.Time `json:"generated_at"`
}

// CostSummary holds window totals and derived per-unit rates.
// Rates are 0.0 when their denominator is zero.
type CostSummary struct {
	TotalCostUSD   float64 `json:"total_cost_usd"`
	TotalTokens    int64   `json:"total_tokens"`
	TotalAPICalls  int64   `json:"total_api_calls"`
	PeriodDays     int     `json:"period_days"`
	CostPerToken   float64 `json:"cost_per_token"`
	CostPerAPICall float64 `json:"cost_per_api_call"`
}

// UserCost is one user's share of a cost breakdown.
type UserCost struct {
	UserID        int64   `json:"user_id"`
	TotalCost     float64 `json:"total_cost"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalAPICalls int64   `json:"total_api_calls"`
}

// CostBreakdown aggregates usage rollups over a trailing window.
type CostBreakdown struct {
	Summary       CostSummary `json:"summary"`
	UserBreakdown []UserCost  `json:"user_breakdown"`
	PeriodStart   time.Time   `json:"period_start"`
	PeriodEnd     time.Time   `json:"period_end"`
}

// EndpointCount is one entry of the dashboard endpoint leaderboard.
type EndpointCount struct {
	Endpoint string `json:"endpoint"`
	Count    int64  `json:"count"`
}

// DashboardMetrics is the operational overview for a trailing window
// measured in hours.
type DashboardMetrics struct {
	WindowHours   int             `json:"window_hours"`
	TotalEvents   int64           `json:"total_events"`
	ActiveUsers   int64           `json:"active_users"`
	TotalAPICalls int64           `json:"total_api_calls"`
	TotalCost     float64         `json:"total_cost"`
	TopEndpoints  []EndpointCount `json:"top_endpoints"`
	RecentEvents  []Metric        `json:"recent_events"`
}
