package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pulseboard/pulseboard/internal/model"
)

const (
	// recentEventsKey is the Redis list holding the newest metrics.
	recentEventsKey = "analytics:recent_events"
	// recentEventsMax caps the list length. Older entries are trimmed.
	recentEventsMax = 100
)

// PushRecentEvent prepends a metric to the recent-events list and trims
// it to the cap. The list is a convenience view for dashboards; the
// database stays authoritative.
func (c *Cache) PushRecentEvent(ctx context.Context, m model.Metric) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode recent event: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.LPush(ctx, recentEventsKey, payload)
	pipe.LTrim(ctx, recentEventsKey, 0, recentEventsMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push recent event: %w", err)
	}

	return nil
}

// RecentEvents returns up to limit cached metrics, newest first.
// An empty cache yields an empty slice, not an error.
func (c *Cache) RecentEvents(ctx context.Context, limit int) ([]model.Metric, error) {
	if limit <= 0 {
		limit = recentEventsMax
	}

	raw, err := c.client.LRange(ctx, recentEventsKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent events: %w", err)
	}

	events := make([]model.Metric, 0, len(raw))
	for _, item := range raw {
		var m model.Metric
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			// Skip entries written by older builds.
			continue
		}
		events = append(events, m)
	}

	return events, nil
}
