package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yari4ek89/siverbotv2/internal/domain"
)

const queueColumns = `id, source, raw_text, formatted_text, dedup_hash, fingerprint, status, created_at, decided_at`

// QueueRepository persists approval queue items. Rows are never deleted.
type QueueRepository struct {
	db *sqlx.DB
}

// NewQueueRepository creates a queue repository.
func NewQueueRepository(db *sqlx.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

type queueRow struct {
	domain.QueueItem
	CreatedAtMillis int64         `db:"created_at"`
	DecidedAtMillis sql.NullInt64 `db:"decided_at"`
}

func (row queueRow) item() *domain.QueueItem {
	item := row.QueueItem
	item.CreatedAt = fromMillis(row.CreatedAtMillis)
	if row.DecidedAtMillis.Valid {
		at := fromMillis(row.DecidedAtMillis.Int64)
		item.DecidedAt = &at
	}
	return &item
}

// Insert stores item as the next id in sequence and returns that id. The
// caller serializes inserts; the transaction keeps MAX(id) and the insert
// consistent.
func (r *QueueRepository) Insert(ctx context.Context, item domain.QueueItem) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	if err = tx.GetContext(ctx, &id, `SELECT COALESCE(MAX(id), 0) + 1 FROM queue_items`); err != nil {
		return 0, fmt.Errorf("failed to allocate queue id: %w", err)
	}

	query := tx.Rebind(`INSERT INTO queue_items (` + queueColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)`)
	_, err = tx.ExecContext(ctx, query,
		id, item.Source, item.RawText, item.FormattedText, item.DedupHash, item.Fingerprint,
		string(item.Status), toMillis(item.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert queue item: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit queue item: %w", err)
	}
	return id, nil
}

// Get returns one item or domain.ErrNotFound.
func (r *QueueRepository) Get(ctx context.Context, id int64) (*domain.QueueItem, error) {
	var row queueRow
	query := r.db.Rebind(`SELECT ` + queueColumns + ` FROM queue_items WHERE id = ?`)
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return row.item(), nil
}

// UpdateStatus moves an item from one status to another. It returns false
// when no row had the expected current status.
func (r *QueueRepository) UpdateStatus(
	ctx context.Context, id int64, from, to domain.QueueStatus, at time.Time,
) (bool, error) {
	query := r.db.Rebind(`UPDATE queue_items SET status = ?, decided_at = ? WHERE id = ? AND status = ?`)
	res, err := r.db.ExecContext(ctx, query, string(to), toMillis(at), id, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to update queue item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// ListByStatus returns up to limit items with status, newest first.
func (r *QueueRepository) ListByStatus(
	ctx context.Context, status domain.QueueStatus, limit int,
) ([]*domain.QueueItem, error) {
	var rows []queueRow
	query := r.db.Rebind(`SELECT ` + queueColumns + ` FROM queue_items WHERE status = ? ORDER BY id DESC LIMIT ?`)
	if err := r.db.SelectContext(ctx, &rows, query, string(status), limit); err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}

	items := make([]*domain.QueueItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.item())
	}
	return items, nil
}

// CountByStatus counts items with status.
func (r *QueueRepository) CountByStatus(ctx context.Context, status domain.QueueStatus) (int, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM queue_items WHERE status = ?`)
	if err := r.db.GetContext(ctx, &n, query, string(status)); err != nil {
		return 0, fmt.Errorf("failed to count queue items: %w", err)
	}
	return n, nil
}
