package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yari4ek89/siverbotv2/internal/domain"
)

// PlaceRepository holds operator-added place keywords per region.
type PlaceRepository struct {
	db *sqlx.DB
}

// NewPlaceRepository creates a place repository.
func NewPlaceRepository(db *sqlx.DB) *PlaceRepository {
	return &PlaceRepository{db: db}
}

// List returns the places of one region.
func (r *PlaceRepository) List(ctx context.Context, region domain.RegionID) ([]string, error) {
	var names []string
	query := r.db.Rebind(`SELECT name FROM places WHERE region = ? ORDER BY name`)
	if err := r.db.SelectContext(ctx, &names, query, string(region)); err != nil {
		return nil, fmt.Errorf("failed to list places: %w", err)
	}
	return names, nil
}

// All returns every region's places.
func (r *PlaceRepository) All(ctx context.Context) (map[domain.RegionID][]string, error) {
	var rows []struct {
		Region string `db:"region"`
		Name   string `db:"name"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT region, name FROM places ORDER BY region, name`); err != nil {
		return nil, fmt.Errorf("failed to load places: %w", err)
	}

	out := make(map[domain.RegionID][]string)
	for _, row := range rows {
		region := domain.RegionID(row.Region)
		out[region] = append(out[region], row.Name)
	}
	return out, nil
}

// Add normalizes and stores a place keyword. It returns the stored keyword.
func (r *PlaceRepository) Add(ctx context.Context, region domain.RegionID, raw string) (string, error) {
	name, err := domain.NormalizePlace(raw)
	if err != nil {
		return "", err
	}

	query := r.db.Rebind(`
		INSERT INTO places (region, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT (region, name) DO NOTHING
	`)
	res, err := r.db.ExecContext(ctx, query, string(region), name, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to add place: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return name, domain.ErrAlreadyExists
	}
	return name, nil
}

// Remove deletes a place keyword.
func (r *PlaceRepository) Remove(ctx context.Context, region domain.RegionID, raw string) error {
	name, err := domain.NormalizePlace(raw)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`DELETE FROM places WHERE region = ? AND name = ?`)
	res, err := r.db.ExecContext(ctx, query, string(region), name)
	if err != nil {
		return fmt.Errorf("failed to remove place: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
