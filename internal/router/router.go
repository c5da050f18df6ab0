// Package router decides what happens to a classified report: drop as a
// duplicate, publish directly, or queue for operator approval. Dedup keys are
// recorded only when something is actually published.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/yari4ek89/siverbotv2/internal/dedup"
	"github.com/yari4ek89/siverbotv2/internal/domain"
	"github.com/yari4ek89/siverbotv2/internal/logger"
	"github.com/yari4ek89/siverbotv2/internal/telemetry"
)

// maxOriginalRunes keeps the original text inside one chat message.
const maxOriginalRunes = 3800

// Outcome is the result of routing one report.
type Outcome string

const (
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeDroppedNoTarget Outcome = "dropped_no_target"
	OutcomePublished       Outcome = "published"
	OutcomeQueued          Outcome = "queued"
	OutcomeFailed          Outcome = "failed"
)

// Publisher sends text to a destination channel.
type Publisher interface {
	Publish(ctx context.Context, destination, text string) error
}

// Notifier presents a queued item to the operator.
type Notifier interface {
	NotifyPending(ctx context.Context, item *domain.QueueItem) error
}

// SettingsReader returns the current settings.
type SettingsReader interface {
	Get(ctx context.Context) (domain.Settings, error)
}

// Deduper is the two-phase dedup contract.
type Deduper interface {
	Check(ctx context.Context, r domain.Report, window time.Duration) (dedup.Verdict, error)
	Commit(ctx context.Context, v dedup.Verdict) error
}

// Queue is the approval queue.
type Queue interface {
	Add(ctx context.Context, item domain.QueueItem) (int64, error)
	Get(ctx context.Context, id int64) (*domain.QueueItem, error)
	SetStatus(ctx context.Context, id int64, status domain.QueueStatus) (bool, error)
	CountPending(ctx context.Context) (int, error)
}

// Result describes a routing decision.
type Result struct {
	Outcome Outcome
	QueueID int64
	Verdict dedup.Verdict
}

// Router serializes check, publish or enqueue, and mark so two concurrent
// copies of one report cannot both pass the dedup check.
type Router struct {
	settings  SettingsReader
	dedup     Deduper
	queue     Queue
	publisher Publisher
	notifier  Notifier
	log       logger.Logger
	telemetry *telemetry.Provider

	mu sync.Mutex
}

// Config bundles the router's collaborators.
type Config struct {
	Settings  SettingsReader
	Dedup     Deduper
	Queue     Queue
	Publisher Publisher
	Notifier  Notifier
	Logger    logger.Logger
	Telemetry *telemetry.Provider
}

// New creates a router.
func New(cfg Config) *Router {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Router{
		settings:  cfg.Settings,
		dedup:     cfg.Dedup,
		queue:     cfg.Queue,
		publisher: cfg.Publisher,
		notifier:  cfg.Notifier,
		log:       log.With(logger.Component("router")),
		telemetry: cfg.Telemetry,
	}
}

// Route runs phase one: dedup check, then publish (auto) or enqueue (manual).
func (r *Router) Route(ctx context.Context, report domain.Report) (Result, error) {
	settings, err := r.settings.Get(ctx)
	if err != nil {
		return Result{Outcome: OutcomeFailed}, fmt.Errorf("load settings: %w", err)
	}

	r.mu.Lock()
	res, item, err := r.route(ctx, settings, report)
	r.mu.Unlock()

	if item != nil {
		r.notify(ctx, item)
		r.refreshPending(ctx)
	}
	return res, err
}

func (r *Router) route(
	ctx context.Context, settings domain.Settings, report domain.Report,
) (Result, *domain.QueueItem, error) {
	v, err := r.dedup.Check(ctx, report, settings.DedupWindow())
	if err != nil {
		return Result{Outcome: OutcomeFailed}, nil, fmt.Errorf("dedup check: %w", err)
	}
	res := Result{Verdict: v}

	if v.Duplicate {
		r.telemetry.RecordDuplicate(string(v.Reason))
		r.log.Debug("Duplicate report dropped",
			logger.String("source", report.SourceID),
			logger.String("reason", string(v.Reason)),
			logger.Float64("similarity", v.Similarity),
		)
		res.Outcome = OutcomeDuplicate
		return res, nil, nil
	}

	if settings.Mode == domain.ModeAuto {
		return r.publishDirect(ctx, settings, report, res)
	}

	item := domain.QueueItem{
		Source:        report.SourceID,
		RawText:       report.RawText,
		FormattedText: report.Formatted,
		DedupHash:     v.Key,
		Fingerprint:   v.Tokens.String(),
	}
	id, err := r.queue.Add(ctx, item)
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, nil, err
	}
	item.ID = id
	item.Status = domain.StatusPending

	r.log.Info("Report queued for approval",
		logger.Int64("queue_id", id),
		logger.String("source", report.SourceID),
	)
	res.Outcome, res.QueueID = OutcomeQueued, id
	return res, &item, nil
}

func (r *Router) publishDirect(
	ctx context.Context, settings domain.Settings, report domain.Report, res Result,
) (Result, *domain.QueueItem, error) {
	if !settings.TargetChannelConfigured() {
		r.log.Warn("Auto mode without target channel, report dropped",
			logger.String("source", report.SourceID),
		)
		res.Outcome = OutcomeDroppedNoTarget
		return res, nil, nil
	}

	if err := r.publisher.Publish(ctx, settings.TargetChannel, report.Formatted); err != nil {
		res.Outcome = OutcomeFailed
		return res, nil, fmt.Errorf("publish: %w", err)
	}

	if err := r.dedup.Commit(ctx, res.Verdict); err != nil {
		r.log.Error("Failed to record published report", logger.Error(err))
	}

	r.log.Info("Report published",
		logger.String("source", report.SourceID),
		logger.String("target", settings.TargetChannel),
	)
	res.Outcome = OutcomePublished
	return res, nil, nil
}

func (r *Router) notify(ctx context.Context, item *domain.QueueItem) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.NotifyPending(ctx, item); err != nil {
		r.log.Error("Failed to notify operator",
			logger.Int64("queue_id", item.ID),
			logger.Error(err),
		)
	}
}

func (r *Router) refreshPending(ctx context.Context) {
	if r.telemetry == nil {
		return
	}
	n, err := r.queue.CountPending(ctx)
	if err != nil {
		r.log.Warn("Failed to count pending items", logger.Error(err))
		return
	}
	r.telemetry.SetQueuePending(n)
}

// pendingItem loads an item and requires it to still be pending.
func (r *Router) pendingItem(ctx context.Context, id int64) (*domain.QueueItem, error) {
	item, err := r.queue.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: item %d is %s", domain.ErrNotPending, id, item.Status)
	}
	return item, nil
}

// Approve runs phase two for a queued item: publish, mark approved and
// record its dedup key and fingerprint.
func (r *Router) Approve(ctx context.Context, id int64) (*domain.QueueItem, error) {
	settings, err := r.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	item, err := r.pendingItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if !settings.TargetChannelConfigured() {
		return nil, domain.ErrNoTarget
	}

	if err = r.publisher.Publish(ctx, settings.TargetChannel, item.FormattedText); err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}

	if _, err = r.queue.SetStatus(ctx, id, domain.StatusApproved); err != nil {
		// The post is already out; the item stays pending.
		r.log.Error("Published item could not be marked approved",
			logger.Int64("queue_id", id),
			logger.Error(err),
		)
		return nil, err
	}
	item.Status = domain.StatusApproved

	v := dedup.Verdict{Key: item.DedupHash, Tokens: dedup.ParseTokens(item.Fingerprint)}
	if err = r.dedup.Commit(ctx, v); err != nil {
		r.log.Error("Failed to record approved report", logger.Int64("queue_id", id), logger.Error(err))
	}

	r.log.Info("Queue item approved and published",
		logger.Int64("queue_id", id),
		logger.String("target", settings.TargetChannel),
	)
	r.refreshPending(ctx)
	return item, nil
}

// Reject closes a pending item without any other effect.
func (r *Router) Reject(ctx context.Context, id int64) (*domain.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, err := r.pendingItem(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err = r.queue.SetStatus(ctx, id, domain.StatusRejected); err != nil {
		return nil, err
	}
	item.Status = domain.StatusRejected

	r.log.Info("Queue item rejected", logger.Int64("queue_id", id))
	r.refreshPending(ctx)
	return item, nil
}

// Original returns the raw source text of an item, cut to fit one message.
func (r *Router) Original(ctx context.Context, id int64) (string, error) {
	item, err := r.queue.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return truncate(item.RawText, maxOriginalRunes), nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

// IsOperatorError reports whether err comes from operator input rather than
// a failing collaborator.
func IsOperatorError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrNotPending) ||
		errors.Is(err, domain.ErrNoTarget) ||
		errors.Is(err, domain.ErrInvalidTransition)
}
