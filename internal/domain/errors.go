package domain

import "errors"

var (
	// ErrNotFound is returned for unknown queue ids, sources or places.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when adding a duplicate source or place.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotPending is returned when acting on an item that was already decided.
	ErrNotPending = errors.New("queue item is not pending")
	// ErrInvalidTransition is returned for any status change other than pending -> approved|rejected.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNoTarget is returned when publication needs a target channel and none is set.
	ErrNoTarget = errors.New("target channel is not configured")

	ErrInvalidMode    = errors.New("invalid mode")
	ErrInvalidRegion  = errors.New("invalid region")
	ErrInvalidSource  = errors.New("invalid source")
	ErrInvalidSetting = errors.New("invalid setting")
	ErrInvalidStatus  = errors.New("invalid queue status")
)
