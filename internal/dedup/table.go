package dedup

import (
	"context"
	"sync"
	"time"
)

// Table stores exact-key records with their last publication time.
type Table interface {
	// Seen reports whether key was marked less than window ago. It never
	// refreshes the record.
	Seen(ctx context.Context, key string, window time.Duration) (bool, error)
	// Mark records or refreshes key at the given time.
	Mark(ctx context.Context, key string, at time.Time) error
	// Cleanup evicts records older than window and returns how many went.
	Cleanup(ctx context.Context, window time.Duration) (int, error)
	// Flush removes every record.
	Flush(ctx context.Context) error
}

// MemoryTable is a process-local Table.
type MemoryTable struct {
	mu      sync.Mutex
	records map[string]time.Time
	now     func() time.Time
}

// NewMemoryTable creates an empty table. A nil now uses time.Now.
func NewMemoryTable(now func() time.Time) *MemoryTable {
	if now == nil {
		now = time.Now
	}
	return &MemoryTable{records: make(map[string]time.Time), now: now}
}

// Seen implements Table.
func (t *MemoryTable) Seen(_ context.Context, key string, window time.Duration) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	at, ok := t.records[key]
	return ok && t.now().Sub(at) < window, nil
}

// Mark implements Table.
func (t *MemoryTable) Mark(_ context.Context, key string, at time.Time) error {
	t.mu.Lock()
	t.records[key] = at
	t.mu.Unlock()
	return nil
}

// Cleanup implements Table.
func (t *MemoryTable) Cleanup(_ context.Context, window time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-window)
	removed := 0
	for key, at := range t.records {
		if at.Before(cutoff) {
			delete(t.records, key)
			removed++
		}
	}
	return removed, nil
}

// Flush implements Table.
func (t *MemoryTable) Flush(_ context.Context) error {
	t.mu.Lock()
	t.records = make(map[string]time.Time)
	t.mu.Unlock()
	return nil
}
