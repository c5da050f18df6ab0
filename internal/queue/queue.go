// Package queue is the approval queue: reports waiting for an operator
// decision in manual mode.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yari4ek89/siverbotv2/internal/domain"
)

// Repository is the persistence the queue needs.
type Repository interface {
	Insert(ctx context.Context, item domain.QueueItem) (int64, error)
	Get(ctx context.Context, id int64) (*domain.QueueItem, error)
	UpdateStatus(ctx context.Context, id int64, from, to domain.QueueStatus, at time.Time) (bool, error)
	ListByStatus(ctx context.Context, status domain.QueueStatus, limit int) ([]*domain.QueueItem, error)
	CountByStatus(ctx context.Context, status domain.QueueStatus) (int, error)
}

// DefaultListLimit bounds List when the caller passes no limit.
const DefaultListLimit = 20

// Queue assigns ids and guards status transitions. Writes are serialized so
// ids stay strictly increasing.
type Queue struct {
	repo Repository
	now  func() time.Time
	mu   sync.Mutex
}

// New creates a queue. A nil now uses time.Now.
func New(repo Repository, now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{repo: repo, now: now}
}

// Add stores item as pending and returns its id.
func (q *Queue) Add(ctx context.Context, item domain.QueueItem) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item.ID = 0
	item.Status = domain.StatusPending
	item.CreatedAt = q.now()
	item.DecidedAt = nil

	id, err := q.repo.Insert(ctx, item)
	if err != nil {
		return 0, fmt.Errorf("queue add: %w", err)
	}
	return id, nil
}

// Get returns an item or domain.ErrNotFound.
func (q *Queue) Get(ctx context.Context, id int64) (*domain.QueueItem, error) {
	return q.repo.Get(ctx, id)
}

// SetStatus moves a pending item to approved or rejected. It returns false
// without error when id is unknown, and domain.ErrInvalidTransition for any
// other change.
func (q *Queue) SetStatus(ctx context.Context, id int64, status domain.QueueStatus) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, err := q.repo.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !item.Status.CanTransitionTo(status) {
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, item.Status, status)
	}

	ok, err := q.repo.UpdateStatus(ctx, id, item.Status, status, q.now())
	if err != nil {
		return false, fmt.Errorf("queue set status: %w", err)
	}
	if !ok {
		return false, fmt.Errorf("%w: item %d changed concurrently", domain.ErrInvalidTransition, id)
	}
	return true, nil
}

// ListPending returns up to limit pending items, newest first.
func (q *Queue) ListPending(ctx context.Context, limit int) ([]*domain.QueueItem, error) {
	return q.List(ctx, domain.StatusPending, limit)
}

// List returns up to limit items in the given status, newest first.
// Decided items stay listable since nothing is ever deleted.
func (q *Queue) List(ctx context.Context, status domain.QueueStatus, limit int) ([]*domain.QueueItem, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return q.repo.ListByStatus(ctx, status, limit)
}

// CountPending returns the number of pending items.
func (q *Queue) CountPending(ctx context.Context) (int, error) {
	return q.repo.CountByStatus(ctx, domain.StatusPending)
}
