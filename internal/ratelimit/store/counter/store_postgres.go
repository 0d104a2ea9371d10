package counter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hearth/internal/ratelimit/models"
	"hearth/internal/sentinel"
)

// PostgresStore persists rate limit counters in PostgreSQL.
//
// Schema:
//
//	CREATE TABLE rate_limit_counters (
//	    subject_id    TEXT        NOT NULL,
//	    endpoint      TEXT        NOT NULL,
//	    window_start  TIMESTAMPTZ NOT NULL,
//	    request_count INTEGER     NOT NULL CHECK (request_count >= 0),
//	    expires_at    TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (subject_id, endpoint, window_start)
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed counter store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, key models.CounterKey) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT request_count
		FROM rate_limit_counters
		WHERE subject_id = $1 AND endpoint = $2 AND window_start = $3
	`, key.SubjectID, key.Endpoint, key.WindowStart).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get rate limit counter: %w (%w)", err, sentinel.ErrUnavailable)
	}
	return count, nil
}

// Increment is a single-statement atomic upsert; the increment commits as one
// operation even if the enclosing request is aborted mid-pipeline.
func (s *PostgresStore) Increment(ctx context.Context, key models.CounterKey, window time.Duration) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO rate_limit_counters (subject_id, endpoint, window_start, request_count, expires_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (subject_id, endpoint, window_start)
		DO UPDATE SET request_count = rate_limit_counters.request_count + 1
		RETURNING request_count
	`, key.SubjectID, key.Endpoint, key.WindowStart, key.WindowStart.Add(2*window)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment rate limit counter: %w (%w)", err, sentinel.ErrUnavailable)
	}
	return count, nil
}

// Prune drops counters past their retention. Invoked by the cleanup worker.
func (s *PostgresStore) Prune(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_counters WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("prune rate limit counters: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
