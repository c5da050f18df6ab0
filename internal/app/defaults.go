package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yari4ek89/siverbotv2/internal/config"
	"github.com/yari4ek89/siverbotv2/internal/domain"
	"github.com/yari4ek89/siverbotv2/internal/logger"
)

// DefaultSettings converts the configured defaults into Settings. They apply
// to every key the operator has not changed.
func DefaultSettings(d config.DefaultsConfig) (domain.Settings, error) {
	mode, err := domain.ParseMode(d.Mode)
	if err != nil {
		return domain.Settings{}, err
	}

	s := domain.Settings{
		Mode:               mode,
		DedupWindowMinutes: d.DedupWindowMinutes,
		AlertsEnabled:      d.AlertsEnabled == nil || *d.AlertsEnabled,
		AlertsIncludeTime:  d.AlertsIncludeTime,
		AllowedRegions:     make([]domain.RegionID, 0, len(d.AllowedRegions)),
	}

	if d.TargetChannel != "" {
		if s.TargetChannel, err = domain.NormalizeChannel(d.TargetChannel); err != nil {
			return domain.Settings{}, fmt.Errorf("target channel: %w", err)
		}
	}
	if d.AlertsChannel != "" {
		if s.AlertsChannel, err = domain.NormalizeChannel(d.AlertsChannel); err != nil {
			return domain.Settings{}, fmt.Errorf("alerts channel: %w", err)
		}
	}
	for _, r := range d.AllowedRegions {
		id, parseErr := domain.ParseRegion(r)
		if parseErr != nil {
			return domain.Settings{}, parseErr
		}
		s.AllowedRegions = append(s.AllowedRegions, id)
	}
	return s, nil
}

// seedSources fills an empty allow-list from the configured sources.
func (a *App) seedSources(ctx context.Context) error {
	if len(a.cfg.Defaults.Sources) == 0 {
		return nil
	}

	existing, err := a.sources.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	added := 0
	for _, raw := range a.cfg.Defaults.Sources {
		if _, addErr := a.sources.Add(ctx, raw); addErr != nil {
			if errors.Is(addErr, domain.ErrAlreadyExists) {
				continue
			}
			a.log.Warn("Skipping configured source", logger.String("source", raw), logger.Error(addErr))
			continue
		}
		added++
	}
	a.log.Info("Seeded source allow-list", logger.Int("count", added))
	return nil
}
