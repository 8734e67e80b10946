package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RateLimits persists request timestamps per limiter key.
type RateLimits struct {
	db *sql.DB
}

// NewRateLimits creates a new SQLite rate-limit repository.
func NewRateLimits(db *sql.DB) *RateLimits {
	return &RateLimits{db: db}
}

// Update loads the timestamps of key, passes them to fn and stores the result, in one transaction.
// An error from fn aborts the transaction and is returned unchanged.
func (r *RateLimits) Update(ctx context.Context, key string, fn func(requests []time.Time) ([]time.Time, error)) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, "SELECT requests FROM rate_limits WHERE key = ?", key).Scan(&raw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to load rate limit: %w", err)
	}

	var millis []int64
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &millis); err != nil {
			return fmt.Errorf("failed to decode rate limit: %w", err)
		}
	}
	requests := make([]time.Time, 0, len(millis))
	for _, ms := range millis {
		requests = append(requests, time.UnixMilli(ms))
	}

	next, fnErr := fn(requests)
	if fnErr != nil {
		return fnErr
	}

	out := make([]int64, 0, len(next))
	for _, t := range next {
		out = append(out, t.UnixMilli())
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode rate limit: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rate_limits (key, requests, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET requests = excluded.requests, updated_at = excluded.updated_at`,
		key, string(encoded),
	)
	if err != nil {
		return fmt.Errorf("failed to save rate limit: %w", err)
	}
	return tx.Commit()
}
