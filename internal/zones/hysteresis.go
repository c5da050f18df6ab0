package zones

import (
	"time"

	"github.com/yari4ek89/siverbotv2/internal/domain"
)

// Transition is the outcome of one observation of a zone.
type Transition int

const (
	// NoChange covers seeding, stable observations and uncommitted runs.
	NoChange Transition = iota
	TurnedOn
	TurnedOff
	// Suppressed is a committed change inside the cooldown window.
	Suppressed
)

func (t Transition) String() string {
	switch t {
	case TurnedOn:
		return "on"
	case TurnedOff:
		return "off"
	case Suppressed:
		return "suppressed"
	default:
		return "none"
	}
}

// StepConfig holds the hysteresis parameters.
type StepConfig struct {
	// ConfirmCount is the number of consecutive differing observations needed to commit.
	ConfirmCount int
	// Cooldown is the minimum time between two announcements for one zone. Zero disables it.
	Cooldown time.Duration
}

// Step applies one observation to a zone's state. It never mutates state in
// place; the returned state replaces it.
func Step(state domain.ZoneState, current bool, now time.Time, cfg StepConfig) (domain.ZoneState, Transition) {
	next := state.Clone()

	if next.Confirmed == nil {
		next.Confirmed = &current
		next.Pending = nil
		return next, NoChange
	}

	if *next.Confirmed == current {
		next.Pending = nil
		return next, NoChange
	}

	if next.Pending == nil || next.Pending.Value != current {
		next.Pending = &domain.PendingRun{Value: current, Count: 1}
	} else {
		next.Pending.Count++
	}

	if next.Pending.Count < max(cfg.ConfirmCount, 1) {
		return next, NoChange
	}

	next.Confirmed = &current
	next.Pending = nil

	if cfg.Cooldown > 0 && !next.LastSentAt.IsZero() && now.Sub(next.LastSentAt) < cfg.Cooldown {
		return next, Suppressed
	}

	next.LastSentAt = now
	if current {
		return next, TurnedOn
	}
	return next, TurnedOff
}
