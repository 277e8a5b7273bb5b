// Package testutil provides helpers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/pulseboard/pulseboard/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 770077

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetUsersSchema drops and recreates the users schema for tests.
func ResetUsersSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000001_users")
}

// ResetMetricsSchema drops and recreates the metrics schema for tests.
func ResetMetricsSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000002_metrics")
}

// ResetUsageSchema drops and recreates the usage schema for tests.
func ResetUsageSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000003_usage")
}

// resetSchema applies the down then up migration with the given prefix.
func resetSchema(ctx context.Context, pool *pgxpool.Pool, name string) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	downSQL, err := os.ReadFile(filepath.Join(root, "migrations", name+".down.sql"))
	if err != nil {
		return fmt.Errorf("read down migration: %w", err)
	}
	if _, err := pool.Exec(ctx, string(downSQL)); err != nil {
		return fmt.Errorf("apply down migration %s: %w", name, err)
	}

	upSQL, err := os.ReadFile(filepath.Join(root, "migrations", name+".up.sql"))
	if err != nil {
		return fmt.Errorf("read up migration: %w", err)
	}
	if _, err := pool.Exec(ctx, string(upSQL)); err != nil {
		return fmt.Errorf("apply up migration %s: %w", name, err)
	}

	return nil
}

// ProjectRoot returns the repository root directory.
func ProjectRoot() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("cannot determine caller path")
	}
	// internal/testutil/testutil.go -> repo root is two levels up.
	return filepath.Abs(filepath.Join(filepath.Dir(file), "..", ".."))
}

// FlushRedis clears the Redis database used by tests.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// UniqueEmail returns an email unlikely to collide across test runs.
func UniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@test.local", prefix, time.Now().UnixNano())
}

// NewTestUser returns a user row ready for CreateUser.
func NewTestUser(email string) *model.User {
	first := "Test"
	last := "User"
	return &model.User{
		Email:        email,
		PasswordHash: "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5B4u1cCkqVZIZfGvVYcpyZbQkTWfa",
		FirstName:    &first,
		LastName:     &last,
		IsActive:     true,
	}
}

// NewTestMetric returns a metric row ready for InsertMetric.
func NewTestMetric(metricType, userID string, value float64) *model.Metric {
	return &model.Metric{
		Type:       metricType,
		Value:      value,
		UserID:     userID,
		Metadata:   map[string]any{"service": "test-suite"},
		RecordedAt: time.Now().UTC(),
	}
}

// NewTestUsage returns a usage rollup ready for UpsertUsage.
func NewTestUsage(userID int64, date time.Time) *model.UsageRecord {
	return &model.UsageRecord{
		UserID:     userID,
		PeriodDate: date,
		PeriodType: model.PeriodDaily,
		APICalls:   100,
		TokensUsed: 5000,
		CostUSD:    0.25,
	}
}
