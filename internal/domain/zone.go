package domain

import (
	"time"
)

// Zone is a statically configured unit tracked by the status poller.
// ID is the zone's index into the status snapshot before the uid offset.
type Zone struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// PendingRun is a streak of identical observations that differ from the
// confirmed state.
type PendingRun struct {
	Value bool `json:"value"`
	Count int  `json:"count"`
}

// ZoneState is the persisted hysteresis state of one zone.
type ZoneState struct {
	ZoneID int `json:"zone_id"`
	// Confirmed is nil until the zone has been observed once.
	Confirmed  *bool       `json:"confirmed_active"`
	Pending    *PendingRun `json:"pending,omitempty"`
	LastSentAt time.Time   `json:"last_sent_at"`
}

// Clone returns a deep copy so a tick can work on scratch state.
func (s ZoneState) Clone() ZoneState {
	out := ZoneState{ZoneID: s.ZoneID, LastSentAt: s.LastSentAt}
	if s.Confirmed != nil {
		v := *s.Confirmed
		out.Confirmed = &v
	}
	if s.Pending != nil {
		p := *s.Pending
		out.Pending = &p
	}
	return out
}
