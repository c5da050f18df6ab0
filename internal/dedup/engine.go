package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yari4ek89/siverbotv2/internal/domain"
)

// DefaultSimilarityThreshold is the Jaccard score at which two fingerprints
// count as the same report.
const DefaultSimilarityThreshold = 0.85

// Reason explains a duplicate verdict.
type Reason string

const (
	ReasonExact   Reason = "exact"
	ReasonSimilar Reason = "similar"
)

// Verdict is the result of Check. It carries everything Commit needs, so the
// publish decision can happen between the two calls.
type Verdict struct {
	Key        string
	Tokens     TokenSet
	Duplicate  bool
	Reason     Reason
	Similarity float64
}

type fingerprint struct {
	tokens TokenSet
	at     time.Time
}

// Engine composes the exact-key table with the in-memory fingerprint window.
type Engine struct {
	table     Table
	threshold float64
	now       func() time.Time

	mu     sync.Mutex
	prints []fingerprint
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreshold overrides DefaultSimilarityThreshold.
func WithThreshold(threshold float64) Option {
	return func(e *Engine) {
		if threshold > 0 {
			e.threshold = threshold
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine over table.
func NewEngine(table Table, opts ...Option) *Engine {
	e := &Engine{
		table:     table,
		threshold: DefaultSimilarityThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check evicts expired records and tells whether r repeats something
// published within window. Nothing is recorded.
func (e *Engine) Check(ctx context.Context, r domain.Report, window time.Duration) (Verdict, error) {
	v := Verdict{Key: Key(r)}

	if _, err := e.table.Cleanup(ctx, window); err != nil {
		return v, fmt.Errorf("cleanup: %w", err)
	}

	seen, err := e.table.Seen(ctx, v.Key, window)
	if err != nil {
		return v, err
	}
	if seen {
		v.Duplicate, v.Reason, v.Similarity = true, ReasonExact, 1
		return v, nil
	}

	if r.HasDirection() {
		return v, nil
	}

	v.Tokens = Tokenize(r.NormalizedText)
	best := e.bestMatch(v.Tokens, window)
	v.Similarity = best
	if best >= e.threshold {
		v.Duplicate, v.Reason = true, ReasonSimilar
	}
	return v, nil
}

func (e *Engine) bestMatch(tokens TokenSet, window time.Duration) float64 {
	if len(tokens) == 0 {
		return 0
	}

	cutoff := e.now().Add(-window)

	e.mu.Lock()
	defer e.mu.Unlock()

	best := 0.0
	for _, fp := range e.prints {
		if fp.at.Before(cutoff) {
			continue
		}
		if s := Jaccard(tokens, fp.tokens); s > best {
			best = s
		}
	}
	return best
}

// Commit records a published report: its key always, its fingerprint when
// the verdict carried one.
func (e *Engine) Commit(ctx context.Context, v Verdict) error {
	at := e.now()
	if err := e.table.Mark(ctx, v.Key, at); err != nil {
		return err
	}

	if len(v.Tokens) > 0 {
		e.mu.Lock()
		e.prints = append(e.prints, fingerprint{tokens: v.Tokens, at: at})
		e.mu.Unlock()
	}
	return nil
}

// Prune drops fingerprints older than window and returns how many went.
func (e *Engine) Prune(window time.Duration) int {
	cutoff := e.now().Add(-window)

	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.prints[:0]
	for _, fp := range e.prints {
		if !fp.at.Before(cutoff) {
			kept = append(kept, fp)
		}
	}
	removed := len(e.prints) - len(kept)
	clear(e.prints[len(kept):])
	e.prints = kept
	return removed
}

// Cleanup evicts expired exact-key records.
func (e *Engine) Cleanup(ctx context.Context, window time.Duration) (int, error) {
	return e.table.Cleanup(ctx, window)
}

// Flush empties the exact-key table and the fingerprint window.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	e.prints = nil
	e.mu.Unlock()
	return e.table.Flush(ctx)
}

// Fingerprints returns the number of fingerprints in the window.
func (e *Engine) Fingerprints() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.prints)
}
