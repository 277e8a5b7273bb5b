package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pulseboard/pulseboard/internal/auth"
	"github.com/pulseboard/pulseboard/internal/handler/dto"
	"github.com/pulseboard/pulseboard/internal/model"
	"github.com/pulseboard/pulseboard/internal/service"
)

// Query parameter defaults and caps.
const (
	defaultStatsDays    = 7
	maxStatsDays        = 365
	defaultDashboardHrs = 24
	maxDashboardHrs     = 24 * 30
	defaultRecentEvents = 10
	maxRecentEvents     = 100
	maxMetricQueryLimit = 1000
	maxBatchSize        = 1000
)

// AnalyticsHandler serves the /analytics endpoints.
type AnalyticsHandler struct {
	service *service.AnalyticsService
	logger  *slog.Logger
}

// NewAnalyticsHandler creates an AnalyticsHandler.
func NewAnalyticsHandler(svc *service.AnalyticsService, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: svc,
		logger:  logger.With("component", "analytics_handler"),
	}
}

// TrackEvent handles POST /analytics/events.
func (h *AnalyticsHandler) TrackEvent(w http.ResponseWriter, r *http.Request) {
	var req dto.EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body")
		return
	}

	m := req.ToMetric()
	if err := h.service.RecordEvent(r.Context(), m); err != nil {
		h.writeIngestError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// CreateMetric handles POST /analytics/metrics.
func (h *AnalyticsHandler) CreateMetric(w http.ResponseWriter, r *http.Request) {
	var req dto.MetricRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body")
		return
	}

	m := req.ToMetric()
	if err := h.service.RecordEvent(r.Context(), m); err != nil {
		h.writeIngestError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// CreateMetricBatch handles POST /analytics/metrics/batch.
// The batch is written atomically; one bad metric rejects all of them.
func (h *AnalyticsHandler) CreateMetricBatch(w http.ResponseWriter, r *http.Request) {
	var req dto.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body")
		return
	}
	if len(req.Metrics) == 0 {
		writeError(w, http.StatusBadRequest, "EMPTY_BATCH", "Batch must contain at least one metric")
		return
	}
	if len(req.Metrics) > maxBatchSize {
		writeError(w, http.StatusBadRequest, "BATCH_TOO_LARGE", "Batch exceeds maximum size")
		return
	}

	batch := make([]*model.Metric, 0, len(req.Metrics))
	for i := range req.Metrics {
		batch = append(batch, req.Metrics[i].ToMetric())
	}

	batchID, count, err := h.service.RecordMetricBatch(r.Context(), batch)
	if err != nil {
		h.writeIngestError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BatchResponse{BatchID: batchID, Count: count})
}

// GetMetrics handles GET /analytics/metrics.
func (h *AnalyticsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := model.MetricFilter{
		Type:    q.Get("type"),
		UserID:  q.Get("user_id"),
		Service: q.Get("service"),
		Limit:   clampQueryInt(q.Get("limit"), 0, maxMetricQueryLimit, 0),
	}

	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_TIME", "from must be RFC3339")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_TIME", "to must be RFC3339")
			return
		}
		filter.To = t
	}

	metrics, err := h.service.QueryMetrics(r.Context(), filter)
	if err != nil {
		h.logger.Error("metric query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, dto.MetricListResponse{Metrics: metrics, Count: len(metrics)})
}

// GetUserStats handles GET /analytics/usage/{user_id}.
func (h *AnalyticsHandler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	days := clampQueryInt(r.URL.Query().Get("days"), 1, maxStatsDays, defaultStatsDays)

	stats, err := h.service.UserStats(r.Context(), userID, days)
	if err != nil {
		h.logger.Error("user stats failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GetSystemStats handles GET /analytics/stats.
func (h *AnalyticsHandler) GetSystemStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.SystemStats(r.Context())
	if err != nil {
		h.logger.Error("system stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GetDailyReport handles GET /analytics/reports/daily?date=YYYY-MM-DD.
// Date defaults to the current UTC day.
func (h *AnalyticsHandler) GetDailyReport(w http.ResponseWriter, r *http.Request) {
	date := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_DATE", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	report, err := h.service.DailyReport(r.Context(), date)
	if err != nil {
		h.logger.Error("daily report failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// GetCosts handles GET /analytics/costs.
func (h *AnalyticsHandler) GetCosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days := clampQueryInt(q.Get("days"), 1, maxStatsDays, 30)

	var userID *int64
	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_USER_ID", "user_id must be an integer")
			return
		}
		userID = &id
	}

	breakdown, err := h.service.CostBreakdown(r.Context(), userID, days)
	if err != nil {
		h.logger.Error("cost breakdown failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, breakdown)
}

// GetDashboard handles GET /analytics/dashboard.
func (h *AnalyticsHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	hours := clampQueryInt(r.URL.Query().Get("hours"), 1, maxDashboardHrs, defaultDashboardHrs)

	dash, err := h.service.Dashboard(r.Context(), hours)
	if err != nil {
		h.logger.Error("dashboard failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, dash)
}

// UpsertUsage handles POST /analytics/usage.
func (h *AnalyticsHandler) UpsertUsage(w http.ResponseWriter, r *http.Request) {
	var req dto.UsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body")
		return
	}

	periodDate, err := time.Parse("2006-01-02", req.PeriodDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_DATE", "period_date must be YYYY-MM-DD")
		return
	}

	rec := &model.UsageRecord{
		UserID:     req.UserID,
		PeriodDate: periodDate,
		PeriodType: req.PeriodType,
		APICalls:   req.APICalls,
		TokensUsed: req.TokensUsed,
		CostUSD:    req.CostUSD,
	}

	if err := h.service.UpsertUsage(r.Context(), rec); err != nil {
		h.writeIngestError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// ListUsageRecords handles GET /analytics/usage-records/{user_id}.
func (h *AnalyticsHandler) ListUsageRecords(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_USER_ID", "User id must be an integer")
		return
	}

	q := r.URL.Query()
	periodType := q.Get("period_type")
	if periodType != "" && periodType != model.PeriodDaily && periodType != model.PeriodMonthly {
		writeError(w, http.StatusBadRequest, "INVALID_PERIOD", "period_type must be daily or monthly")
		return
	}
	days := clampQueryInt(q.Get("days"), 1, maxStatsDays, 30)

	records, err := h.service.ListUsage(r.Context(), userID, periodType, days)
	if err != nil {
		h.logger.Error("usage listing failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, dto.UsageListResponse{
		UserID:  userID,
		Records: records,
		Count:   len(records),
	})
}

// GetRecentEvents handles GET /analytics/events/recent.
func (h *AnalyticsHandler) GetRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := clampQueryInt(r.URL.Query().Get("limit"), 1, maxRecentEvents, defaultRecentEvents)

	events, err := h.service.RecentEvents(r.Context(), limit)
	if err != nil {
		h.logger.Error("recent events failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, dto.RecentEventsResponse{Events: events, Count: len(events)})
}

// PurgeUserMetrics handles DELETE /analytics/users/{user_id}/metrics.
// Requires a bearer token; callers may only purge metrics recorded under
// their own numeric id or email.
func (h *AnalyticsHandler) PurgeUserMetrics(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing credentials")
		return
	}

	userID := chi.URLParam(r, "user_id")
	if userID != strconv.FormatInt(caller.ID, 10) && userID != caller.Email {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Cannot purge another user's metrics")
		return
	}

	deleted, err := h.service.PurgeUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("metrics purge failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, dto.PurgeResponse{UserID: userID, Deleted: deleted})
}

func (h *AnalyticsHandler) writeIngestError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrInvalidMetric) {
		writeError(w, http.StatusBadRequest, "INVALID_METRIC", err.Error())
		return
	}
	h.logger.Error("metric ingest failed", "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}

// clampQueryInt parses an integer query parameter, applying a default
// and clamping to [min, max]. min is ignored when 0.
func clampQueryInt(raw string, min, max, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if min > 0 && v < min {
		return min
	}
	if max > 0 && v > max {
		return max
	}
	return v
}
