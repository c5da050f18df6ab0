package domain

import (
	"time"
)

// QueueStatus is the lifecycle state of a queued report.
type QueueStatus string

const (
	StatusPending  QueueStatus = "pending"
	StatusApproved QueueStatus = "approved"
	StatusRejected QueueStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s QueueStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// CanTransitionTo allows only pending -> approved|rejected.
func (s QueueStatus) CanTransitionTo(next QueueStatus) bool {
	return s == StatusPending && (next == StatusApproved || next == StatusRejected)
}

// QueueItem is a report awaiting or past operator review. Items are never deleted.
type QueueItem struct {
	ID            int64       `db:"id"             json:"id"`
	Source        string      `db:"source"         json:"source"`
	RawText       string      `db:"raw_text"       json:"raw_text"`
	FormattedText string      `db:"formatted_text" json:"formatted_text"`
	DedupHash     string      `db:"dedup_hash"     json:"dedup_hash"`
	// Fingerprint is the space-joined token set, empty when the item is keyed structurally.
	Fingerprint string      `db:"fingerprint" json:"fingerprint,omitempty"`
	Status      QueueStatus `db:"status"      json:"status"`
	CreatedAt   time.Time   `db:"-"           json:"created_at"`
	DecidedAt   *time.Time  `db:"-"           json:"decided_at,omitempty"`
}
