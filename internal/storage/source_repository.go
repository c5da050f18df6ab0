package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yari4ek89/siverbotv2/internal/domain"
)

// SourceRepository is the allow-list of channels whose posts are read.
// Names are stored normalized (lower-case, no @).
type SourceRepository struct {
	db *sqlx.DB
}

// NewSourceRepository creates a source repository.
func NewSourceRepository(db *sqlx.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// List returns all sources in name order.
func (r *SourceRepository) List(ctx context.Context) ([]string, error) {
	var names []string
	if err := r.db.SelectContext(ctx, &names, `SELECT name FROM sources ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return names, nil
}

// Contains reports whether the already-normalized name is allowed.
func (r *SourceRepository) Contains(ctx context.Context, name string) (bool, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM sources WHERE name = ?`)
	if err := r.db.GetContext(ctx, &n, query, name); err != nil {
		return false, fmt.Errorf("failed to check source: %w", err)
	}
	return n > 0, nil
}

// Add normalizes and stores a source. It returns the stored name.
func (r *SourceRepository) Add(ctx context.Context, raw string) (string, error) {
	name, err := domain.NormalizeSource(raw)
	if err != nil {
		return "", err
	}

	query := r.db.Rebind(`INSERT INTO sources (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`)
	res, err := r.db.ExecContext(ctx, query, name, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to add source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return name, domain.ErrAlreadyExists
	}
	return name, nil
}

// Remove deletes a source.
func (r *SourceRepository) Remove(ctx context.Context, raw string) error {
	name, err := domain.NormalizeSource(raw)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM sources WHERE name = ?`), name)
	if err != nil {
		return fmt.Errorf("failed to remove source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
