package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pulseboard/pulseboard/internal/model"
)

// ErrEmptyBatch is returned when a batch insert receives no metrics.
var ErrEmptyBatch = errors.New("metric batch is empty")

// defaultQueryLimit caps unbounded metric queries.
const defaultQueryLimit = 100

// MetricRepository handles metric persistence and windowed aggregation.
type MetricRepository struct {
	repo *Repository
}

// NewMetricRepository creates a MetricRepository on top of the base Repository.
func NewMetricRepository(repo *Repository) *MetricRepository {
	return &MetricRepository{repo: repo}
}

// InsertMetric stores a single metric and fills in the generated fields.
// A zero RecordedAt is defaulted to the current time.
func (r *MetricRepository) InsertMetric(ctx context.Context, m *model.Metric) error {
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now().UTC()
	}

	metadata, err := marshalMetadata(m.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO metrics (type, value, user_id, metadata, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err = r.repo.pool.QueryRow(ctx, query,
		m.Type,
		m.Value,
		m.UserID,
		metadata,
		m.RecordedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to insert metric: %w", err)
	}

	return nil
}

// InsertMetricBatch stores all metrics in one transaction.
// Either every row is written or none is. Returns the number written.
func (r *MetricRepository) InsertMetricBatch(ctx context.Context, metrics []*model.Metric) (int, error) {
	if len(metrics) == 0 {
		return 0, ErrEmptyBatch
	}

	now := time.Now().UTC()

	tx, err := r.repo.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO metrics (type, value, user_id, metadata, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	batch := &pgx.Batch{}
	for _, m := range metrics {
		if m.RecordedAt.IsZero() {
			m.RecordedAt = now
		}

		metadata, err := marshalMetadata(m.Metadata)
		if err != nil {
			return 0, err
		}

		batch.Queue(query, m.Type, m.Value, m.UserID, metadata, m.RecordedAt)
	}

	results := tx.SendBatch(ctx, batch)
	for range metrics {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("failed to insert metric in batch: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("failed to close metric batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit metric batch: %w", err)
	}

	return len(metrics), nil
}

// QueryMetrics returns metrics matching the filter, newest first.
func (r *MetricRepository) QueryMetrics(ctx context.Context, filter model.MetricFilter) ([]*model.Metric, error) {
	var (
		conditions []string
		args       []any
	)

	addCondition := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.Type != "" {
		addCondition("type = $%d", filter.Type)
	}
	if filter.UserID != "" {
		addCondition("user_id = $%d", filter.UserID)
	}
	if filter.Service != "" {
		addCondition("metadata->>'service' = $%d", filter.Service)
	}
	if !filter.From.IsZero() {
		addCondition("recorded_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		addCondition("recorded_at <= $%d", filter.To)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	query := `
		SELECT id, type, value, user_id, metadata, recorded_at
		FROM metrics
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY recorded_at DESC LIMIT $%d", len(args))

	rows, err := r.repo.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]*model.Metric, 0)
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metrics: %w", err)
	}

	return metrics, nil
}

// PurgeUserMetrics deletes every metric recorded for the given user id.
// Returns the number of rows removed.
func (r *MetricRepository) PurgeUserMetrics(ctx context.Context, userID string) (int64, error) {
	tag, err := r.repo.pool.Exec(ctx, `DELETE FROM metrics WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to purge user metrics: %w", err)
	}
	return tag.RowsAffected(), nil
}

// rowScanner matches the Scan method shared by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMetric(row rowScanner) (*model.Metric, error) {
	var (
		m            model.Metric
		metadataJSON []byte
	)

	if err := row.Scan(&m.ID, &m.Type, &m.Value, &m.UserID, &metadataJSON, &m.RecordedAt); err != nil {
		return nil, fmt.Errorf("failed to scan metric: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metric metadata: %w", err)
		}
	}

	return &m, nil
}

// marshalMetadata serializes metadata to JSONB, mapping empty maps to NULL.
func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metric metadata: %w", err)
	}
	return data, nil
}
