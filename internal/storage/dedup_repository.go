package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// DedupRepository is the SQL exact-key dedup table.
type DedupRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewDedupRepository creates a dedup repository. A nil now uses time.Now.
func NewDedupRepository(db *sqlx.DB, now func() time.Time) *DedupRepository {
	if now == nil {
		now = time.Now
	}
	return &DedupRepository{db: db, now: now}
}

// Seen reports whether key was marked less than window ago.
func (r *DedupRepository) Seen(ctx context.Context, key string, window time.Duration) (bool, error) {
	var markedAt int64
	query := r.db.Rebind(`SELECT marked_at FROM dedup_records WHERE dedup_key = ?`)
	if err := r.db.GetContext(ctx, &markedAt, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check dedup key: %w", err)
	}
	return r.now().Sub(time.UnixMilli(markedAt)) < window, nil
}

// Mark records or refreshes key.
func (r *DedupRepository) Mark(ctx context.Context, key string, at time.Time) error {
	query := r.db.Rebind(`
		INSERT INTO dedup_records (dedup_key, marked_at) VALUES (?, ?)
		ON CONFLICT (dedup_key) DO UPDATE SET marked_at = excluded.marked_at
	`)
	if _, err := r.db.ExecContext(ctx, query, key, at.UnixMilli()); err != nil {
		return fmt.Errorf("failed to mark dedup key: %w", err)
	}
	return nil
}

// Cleanup deletes records older than window.
func (r *DedupRepository) Cleanup(ctx context.Context, window time.Duration) (int, error) {
	cutoff := r.now().Add(-window).UnixMilli()
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM dedup_records WHERE marked_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean dedup records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(n), nil
}

// Flush deletes every record.
func (r *DedupRepository) Flush(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM dedup_records`); err != nil {
		return fmt.Errorf("failed to flush dedup records: %w", err)
	}
	return nil
}
