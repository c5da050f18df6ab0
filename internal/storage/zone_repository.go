package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/yari4ek89/siverbotv2/internal/domain"
)

// ZoneStateRepository persists the poller's per-zone hysteresis state.
type ZoneStateRepository struct {
	db *sqlx.DB
}

// NewZoneStateRepository creates a zone state repository.
func NewZoneStateRepository(db *sqlx.DB) *ZoneStateRepository {
	return &ZoneStateRepository{db: db}
}

type zoneStateRow struct {
	ZoneID       int64         `db:"zone_id"`
	Confirmed    sql.NullInt64 `db:"confirmed"`
	PendingValue sql.NullInt64 `db:"pending_value"`
	PendingCount int           `db:"pending_count"`
	LastSentAt   int64         `db:"last_sent_at"`
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (row zoneStateRow) state() domain.ZoneState {
	s := domain.ZoneState{ZoneID: int(row.ZoneID), LastSentAt: fromMillis(row.LastSentAt)}
	if row.Confirmed.Valid {
		v := row.Confirmed.Int64 != 0
		s.Confirmed = &v
	}
	if row.PendingValue.Valid && row.PendingCount > 0 {
		s.Pending = &domain.PendingRun{Value: row.PendingValue.Int64 != 0, Count: row.PendingCount}
	}
	return s
}

func rowFromState(s domain.ZoneState) zoneStateRow {
	row := zoneStateRow{ZoneID: int64(s.ZoneID), LastSentAt: toMillis(s.LastSentAt)}
	if s.Confirmed != nil {
		row.Confirmed = sql.NullInt64{Int64: boolToInt(*s.Confirmed), Valid: true}
	}
	if s.Pending != nil {
		row.PendingValue = sql.NullInt64{Int64: boolToInt(s.Pending.Value), Valid: true}
		row.PendingCount = s.Pending.Count
	}
	return row
}

// LoadAll returns every stored state keyed by zone id.
func (r *ZoneStateRepository) LoadAll(ctx context.Context) (map[int]domain.ZoneState, error) {
	var rows []zoneStateRow
	query := `SELECT zone_id, confirmed, pending_value, pending_count, last_sent_at FROM zone_states`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load zone states: %w", err)
	}

	out := make(map[int]domain.ZoneState, len(rows))
	for _, row := range rows {
		s := row.state()
		out[s.ZoneID] = s
	}
	return out, nil
}

// SaveAll upserts states in one transaction.
func (r *ZoneStateRepository) SaveAll(ctx context.Context, states []domain.ZoneState) error {
	if len(states) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := tx.Rebind(`
		INSERT INTO zone_states (zone_id, confirmed, pending_value, pending_count, last_sent_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (zone_id) DO UPDATE SET
			confirmed = excluded.confirmed,
			pending_value = excluded.pending_value,
			pending_count = excluded.pending_count,
			last_sent_at = excluded.last_sent_at
	`)
	for _, s := range states {
		row := rowFromState(s)
		_, err = tx.ExecContext(ctx, query, row.ZoneID, row.Confirmed, row.PendingValue, row.PendingCount, row.LastSentAt)
		if err != nil {
			return fmt.Errorf("failed to save zone %d: %w", s.ZoneID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit zone states: %w", err)
	}
	return nil
}
