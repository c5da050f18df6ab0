package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/yari4ek89/siverbotv2/internal/domain"
)

const (
	keyMode               = "mode"
	keyTargetChannel      = "target_channel"
	keyAllowedRegions     = "allowed_regions"
	keyDedupWindowMinutes = "dedup_window_minutes"
	keyAlertsEnabled      = "alerts_enabled"
	keyAlertsChannel      = "alerts_channel"
	keyAlertsIncludeTime  = "alerts_include_time"
)

// SettingsRepository stores settings as one JSON value per field, so a
// patch only touches the fields it names. Unset fields fall back to the
// configured defaults.
type SettingsRepository struct {
	db       *sqlx.DB
	defaults domain.Settings
}

// NewSettingsRepository creates a settings repository.
func NewSettingsRepository(db *sqlx.DB, defaults domain.Settings) *SettingsRepository {
	return &SettingsRepository{db: db, defaults: defaults}
}

type settingRow struct {
	Key   string `db:"setting_key"`
	Value string `db:"setting_value"`
}

// Get returns the effective settings.
func (r *SettingsRepository) Get(ctx context.Context) (domain.Settings, error) {
	var rows []settingRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT setting_key, setting_value FROM settings`); err != nil {
		return domain.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	s := r.defaults
	s.AllowedRegions = append([]domain.RegionID(nil), r.defaults.AllowedRegions...)

	for _, row := range rows {
		target := settingTarget(&s, row.Key)
		if target == nil {
			continue
		}
		if err := json.Unmarshal([]byte(row.Value), target); err != nil {
			return domain.Settings{}, fmt.Errorf("failed to decode setting %s: %w", row.Key, err)
		}
	}
	return s, nil
}

func settingTarget(s *domain.Settings, key string) any {
	switch key {
	case keyMode:
		return &s.Mode
	case keyTargetChannel:
		return &s.TargetChannel
	case keyAllowedRegions:
		return &s.AllowedRegions
	case keyDedupWindowMinutes:
		return &s.DedupWindowMinutes
	case keyAlertsEnabled:
		return &s.AlertsEnabled
	case keyAlertsChannel:
		return &s.AlertsChannel
	case keyAlertsIncludeTime:
		return &s.AlertsIncludeTime
	}
	return nil
}

// Patch validates and stores the non-nil fields of p and returns the
// resulting settings.
func (r *SettingsRepository) Patch(ctx context.Context, p domain.SettingsPatch) (domain.Settings, error) {
	if err := p.Validate(); err != nil {
		return domain.Settings{}, err
	}

	var values []settingValue
	add := func(key string, v any) { values = append(values, settingValue{key: key, value: v}) }
	if p.Mode != nil {
		add(keyMode, *p.Mode)
	}
	if p.TargetChannel != nil {
		add(keyTargetChannel, *p.TargetChannel)
	}
	if p.AllowedRegions != nil {
		add(keyAllowedRegions, *p.AllowedRegions)
	}
	if p.DedupWindowMinutes != nil {
		add(keyDedupWindowMinutes, *p.DedupWindowMinutes)
	}
	if p.AlertsEnabled != nil {
		add(keyAlertsEnabled, *p.AlertsEnabled)
	}
	if p.AlertsChannel != nil {
		add(keyAlertsChannel, *p.AlertsChannel)
	}
	if p.AlertsIncludeTime != nil {
		add(keyAlertsIncludeTime, *p.AlertsIncludeTime)
	}

	if len(values) > 0 {
		if err := r.store(ctx, values); err != nil {
			return domain.Settings{}, err
		}
	}
	return r.Get(ctx)
}

type settingValue struct {
	key   string
	value any
}

func (r *SettingsRepository) store(ctx context.Context, values []settingValue) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := tx.Rebind(`
		INSERT INTO settings (setting_key, setting_value) VALUES (?, ?)
		ON CONFLICT (setting_key) DO UPDATE SET setting_value = excluded.setting_value
	`)
	for _, v := range values {
		raw, marshalErr := json.Marshal(v.value)
		if marshalErr != nil {
			return fmt.Errorf("failed to encode setting %s: %w", v.key, marshalErr)
		}
		if _, execErr := tx.ExecContext(ctx, query, v.key, string(raw)); execErr != nil {
			return fmt.Errorf("failed to store setting %s: %w", v.key, execErr)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settings: %w", err)
	}
	return nil
}
