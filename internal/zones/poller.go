// Package zones polls the shared status feed, runs per-zone hysteresis and
// announces confirmed alarm transitions in batches.
package zones

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yari4ek89/siverbotv2/internal/domain"
	"github.com/yari4ek89/siverbotv2/internal/logger"
	"github.com/yari4ek89/siverbotv2/internal/telemetry"
)

// ErrTickInProgress is returned when a tick is requested while one is running.
var ErrTickInProgress = errors.New("zone poll already in progress")

const (
	onPrefix  = "🛑 Повітряна тривога: "
	offPrefix = "✅ Відбій повітряної тривоги: "

	defaultInterval = 30 * time.Second
)

// Skip reasons reported by Tick.
const (
	SkipNoZones    = "no_zones"
	SkipDisabled   = "disabled"
	SkipNoChannel  = "no_channel"
	SkipFetchError = "fetch_failed"
)

// Publisher sends announcements.
type Publisher interface {
	Publish(ctx context.Context, destination, text string) error
}

// StateStore persists zone states between restarts.
type StateStore interface {
	LoadAll(ctx context.Context) (map[int]domain.ZoneState, error)
	SaveAll(ctx context.Context, states []domain.ZoneState) error
}

// SettingsReader returns the current settings.
type SettingsReader interface {
	Get(ctx context.Context) (domain.Settings, error)
}

// Config configures a Poller.
type Config struct {
	Zones     []domain.Zone
	Feed      Feed
	Store     StateStore
	Publisher Publisher
	Settings  SettingsReader
	Step      StepConfig
	UIDOffset int
	Alphabet  map[rune]bool
	Interval  time.Duration
	// Location formats the optional HH:MM suffix.
	Location  *time.Location
	Logger    logger.Logger
	Telemetry *telemetry.Provider
	Now       func() time.Time
}

// TickResult summarizes one tick.
type TickResult struct {
	Skipped    string   `json:"skipped,omitempty"`
	TurnedOn   []string `json:"turned_on"`
	TurnedOff  []string `json:"turned_off"`
	Suppressed int      `json:"suppressed"`
}

// ZoneStatus pairs a zone with its current state.
type ZoneStatus struct {
	Zone  domain.Zone      `json:"zone"`
	State domain.ZoneState `json:"state"`
}

// Poller owns the zone states. At most one tick runs at a time.
type Poller struct {
	cfg Config
	log logger.Logger

	tick sync.Mutex

	mu     sync.RWMutex
	states map[int]domain.ZoneState
	loaded bool
}

// New creates a poller. States are loaded from the store on the first tick.
func New(cfg Config) *Poller {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Alphabet == nil {
		cfg.Alphabet = ParseAlphabet("A")
	}
	return &Poller{
		cfg:    cfg,
		log:    cfg.Logger.With(logger.Component("poller")),
		states: make(map[int]domain.ZoneState),
	}
}

// Run ticks immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	if len(p.cfg.Zones) == 0 {
		p.log.Info("No zones configured, zone poller disabled")
		return nil
	}

	p.log.Info("Zone poller starting",
		logger.Int("zones", len(p.cfg.Zones)),
		logger.Duration("interval", p.cfg.Interval),
	)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("Zone poller stopped")
			return nil
		case <-ticker.C:
			p.runTick(ctx)
		}
	}
}

func (p *Poller) runTick(ctx context.Context) {
	if _, err := p.Tick(ctx); err != nil && !errors.Is(err, ErrTickInProgress) {
		p.log.Error("Zone poll failed", logger.Error(err))
	}
}

// Tick fetches one snapshot and steps every zone. A fetch or persistence
// failure leaves all zone states untouched. Announcement failures are logged
// per message.
func (p *Poller) Tick(ctx context.Context) (TickResult, error) {
	if !p.tick.TryLock() {
		return TickResult{}, ErrTickInProgress
	}
	defer p.tick.Unlock()

	ctx, span := p.cfg.Telemetry.TracerOrNoop().Start(ctx, "zones.Tick")
	defer span.End()

	res := TickResult{TurnedOn: []string{}, TurnedOff: []string{}}

	if len(p.cfg.Zones) == 0 {
		res.Skipped = SkipNoZones
		return res, nil
	}

	settings, err := p.cfg.Settings.Get(ctx)
	if err != nil {
		return res, fmt.Errorf("load settings: %w", err)
	}
	if !settings.AlertsEnabled {
		res.Skipped = SkipDisabled
		return res, nil
	}
	channel := settings.AlertsDestination()
	if channel == "" {
		res.Skipped = SkipNoChannel
		return res, nil
	}

	if err := p.ensureLoaded(ctx); err != nil {
		return res, err
	}

	start := p.cfg.Now()
	snap, err := p.cfg.Feed.Fetch(ctx)
	if err != nil {
		p.cfg.Telemetry.RecordZoneTick("failed", 0)
		res.Skipped = SkipFetchError
		return res, err
	}
	fetched := p.cfg.Now()

	next, res := p.step(snap, fetched, res)

	if err := p.cfg.Store.SaveAll(ctx, next); err != nil {
		p.cfg.Telemetry.RecordZoneTick("failed", fetched.Sub(start))
		return TickResult{TurnedOn: []string{}, TurnedOff: []string{}}, fmt.Errorf("save zone states: %w", err)
	}
	p.commit(next)
	p.cfg.Telemetry.RecordZoneTick("ok", fetched.Sub(start))

	span.SetAttributes(
		attribute.Int("turned_on", len(res.TurnedOn)),
		attribute.Int("turned_off", len(res.TurnedOff)),
		attribute.Int("suppressed", res.Suppressed),
	)

	stamp := ""
	if settings.AlertsIncludeTime {
		stamp = " | " + fetched.In(p.cfg.Location).Format("15:04")
	}
	p.announce(ctx, channel, "on", onPrefix, res.TurnedOn, stamp)
	p.announce(ctx, channel, "off", offPrefix, res.TurnedOff, stamp)

	return res, nil
}

// step runs hysteresis for every zone over a copy of the current states.
func (p *Poller) step(snap Snapshot, now time.Time, res TickResult) ([]domain.ZoneState, TickResult) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	next := make([]domain.ZoneState, 0, len(p.cfg.Zones))
	for _, z := range p.cfg.Zones {
		state, ok := p.states[z.ID]
		if !ok {
			state = domain.ZoneState{ZoneID: z.ID}
		}

		current := snap.Active(z.ID+p.cfg.UIDOffset, p.cfg.Alphabet)
		updated, tr := Step(state, current, now, p.cfg.Step)
		next = append(next, updated)

		switch tr {
		case TurnedOn:
			res.TurnedOn = append(res.TurnedOn, z.Name)
			p.cfg.Telemetry.RecordZoneTransition("on", true)
		case TurnedOff:
			res.TurnedOff = append(res.TurnedOff, z.Name)
			p.cfg.Telemetry.RecordZoneTransition("off", true)
		case Suppressed:
			res.Suppressed++
			p.cfg.Telemetry.RecordZoneTransition(direction(current), false)
			p.log.Debug("Zone transition inside cooldown, not announced",
				logger.String("zone", z.Name),
				logger.Bool("active", current),
			)
		case NoChange:
		}
	}
	return next, res
}

func direction(active bool) string {
	if active {
		return "on"
	}
	return "off"
}

func (p *Poller) commit(states []domain.ZoneState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range states {
		p.states[s.ZoneID] = s
	}
}

func (p *Poller) announce(ctx context.Context, channel, kind, prefix string, names []string, stamp string) {
	if len(names) == 0 {
		return
	}
	text := prefix + strings.Join(names, ", ") + stamp
	err := p.cfg.Publisher.Publish(ctx, channel, text)
	p.cfg.Telemetry.RecordAnnouncement(kind, err)
	if err != nil {
		p.log.Error("Failed to send zone announcement",
			logger.String("kind", kind),
			logger.Int("zones", len(names)),
			logger.Error(err),
		)
		return
	}
	p.log.Info("Zone announcement sent", logger.String("kind", kind), logger.Int("zones", len(names)))
}

func (p *Poller) ensureLoaded(ctx context.Context) error {
	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if loaded {
		return nil
	}

	states, err := p.cfg.Store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load zone states: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// A concurrent caller may have loaded and committed a tick meanwhile.
	if p.loaded {
		return nil
	}
	for id, s := range states {
		p.states[id] = s
	}
	p.loaded = true
	return nil
}

// Statuses returns the configured zones with their last known states,
// ordered by zone id.
func (p *Poller) Statuses(ctx context.Context) ([]ZoneStatus, error) {
	if err := p.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]ZoneStatus, 0, len(p.cfg.Zones))
	for _, z := range p.cfg.Zones {
		s, ok := p.states[z.ID]
		if !ok {
			s = domain.ZoneState{ZoneID: z.ID}
		}
		out = append(out, ZoneStatus{Zone: z, State: s.Clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Zone.ID < out[j].Zone.ID })
	return out, nil
}
