// Package pipeline takes one inbound channel post through the allow-list,
// classification, status and region filters and hands survivors to the
// router.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yari4ek89/siverbotv2/internal/classifier"
	"github.com/yari4ek89/siverbotv2/internal/dedup"
	"github.com/yari4ek89/siverbotv2/internal/domain"
	"github.com/yari4ek89/siverbotv2/internal/logger"
	"github.com/yari4ek89/siverbotv2/internal/router"
	"github.com/yari4ek89/siverbotv2/internal/telemetry"
)

// Drop reasons.
const (
	DropSource = "source"
	DropEmpty  = "empty"
	DropStatus = "status"
	DropRegion = "region"
)

// Inbound is one candidate post from any transport.
type Inbound struct {
	Source    string    `json:"source"`
	Text      string    `json:"text"`
	At        time.Time `json:"timestamp"`
	Transport string    `json:"-"`
}

// Decision is what happened to an inbound post.
type Decision struct {
	Dropped    string        `json:"dropped,omitempty"`
	Report     domain.Report `json:"report"`
	StatusOnly bool          `json:"status_only"`
	Routed     bool          `json:"routed"`
	Outcome    string        `json:"outcome,omitempty"`
	QueueID    int64         `json:"queue_id,omitempty"`
}

// Sources is the source allow-list.
type Sources interface {
	Contains(ctx context.Context, name string) (bool, error)
}

// Classifier produces reports from raw text.
type Classifier interface {
	Classify(raw, source string, receivedAt time.Time) domain.Report
}

// Router routes classified reports.
type Router interface {
	Route(ctx context.Context, report domain.Report) (router.Result, error)
}

// SettingsReader returns the current settings.
type SettingsReader interface {
	Get(ctx context.Context) (domain.Settings, error)
}

// Pipeline is safe for concurrent use; routing serializes itself.
type Pipeline struct {
	sources    Sources
	classifier Classifier
	router     Router
	settings   SettingsReader
	log        logger.Logger
	telemetry  *telemetry.Provider
	now        func() time.Time
}

// Config bundles the pipeline's collaborators.
type Config struct {
	Sources    Sources
	Classifier Classifier
	Router     Router
	Settings   SettingsReader
	Logger     logger.Logger
	Telemetry  *telemetry.Provider
	Now        func() time.Time
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		sources:    cfg.Sources,
		classifier: cfg.Classifier,
		router:     cfg.Router,
		settings:   cfg.Settings,
		log:        log.With(logger.Component("pipeline")),
		telemetry:  cfg.Telemetry,
		now:        now,
	}
}

// Handle processes one inbound post end to end.
func (p *Pipeline) Handle(ctx context.Context, in Inbound) (Decision, error) {
	start := p.now()
	ctx, span := p.telemetry.TracerOrNoop().Start(ctx, "pipeline.Handle")
	defer span.End()
	span.SetAttributes(attribute.String("source", in.Source), attribute.String("transport", in.Transport))

	p.telemetry.RecordReceived(in.Transport)
	if in.At.IsZero() {
		in.At = start
	}

	d, err := p.handle(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.log.Error("Failed to process report",
			logger.String("source", in.Source),
			logger.String("transport", in.Transport),
			logger.Error(err),
		)
	}
	if d.Dropped != "" {
		span.SetAttributes(attribute.String("dropped", d.Dropped))
		p.telemetry.RecordDropped(d.Dropped)
	}
	if d.Routed {
		span.SetAttributes(attribute.String("outcome", d.Outcome))
		p.telemetry.RecordRouted(d.Outcome, p.now().Sub(start))
	}
	return d, err
}

func (p *Pipeline) handle(ctx context.Context, in Inbound) (Decision, error) {
	source, err := domain.NormalizeSource(in.Source)
	if err != nil {
		return Decision{Dropped: DropSource}, nil
	}
	allowed, err := p.sources.Contains(ctx, source)
	if err != nil {
		return Decision{}, fmt.Errorf("check source: %w", err)
	}
	if !allowed {
		p.log.Debug("Post from unlisted source ignored", logger.String("source", source))
		return Decision{Dropped: DropSource}, nil
	}

	settings, err := p.settings.Get(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("load settings: %w", err)
	}

	d := p.Inspect(in.Text, source, in.At)
	if d.Dropped != "" {
		return d, nil
	}
	if !d.Report.InRegions(settings.AllowedRegions) {
		d.Dropped = DropRegion
		return d, nil
	}

	res, err := p.router.Route(ctx, d.Report)
	d.Routed, d.Outcome, d.QueueID = true, string(res.Outcome), res.QueueID
	if err != nil {
		return d, fmt.Errorf("route: %w", err)
	}
	return d, nil
}

// Inspect classifies text and applies the content filters without touching
// any state.
func (p *Pipeline) Inspect(text, source string, at time.Time) Decision {
	d := Decision{Report: p.classifier.Classify(text, source, at)}
	if d.Report.NormalizedText == "" {
		d.Dropped = DropEmpty
		return d
	}
	if classifier.IsStatusOnly(d.Report.NormalizedText) {
		d.StatusOnly = true
		d.Dropped = DropStatus
	}
	return d
}

// DedupKey returns the exact-match key a report would be recorded under.
func DedupKey(r domain.Report) string {
	return dedup.Key(r)
}
