package zones_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yari4ek89/siverbotv2/internal/domain"
	"github.com/yari4ek89/siverbotv2/internal/zones"
)

type scriptedFeed struct {
	mu        sync.Mutex
	snapshots []zones.Snapshot
	err       error
	started   chan struct{}
	block     chan struct{}
}

func (f *scriptedFeed) Fetch(context.Context) (zones.Snapshot, error) {
	if f.block != nil {
		close(f.started)
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	s := f.snapshots[0]
	if len(f.snapshots) > 1 {
		f.snapshots = f.snapshots[1:]
	}
	return s, nil
}

type memStore struct {
	mu      sync.Mutex
	states  map[int]domain.ZoneState
	saves   int
	saveErr error

	// When set, the first LoadAll copies the states, closes loadStarted and
	// waits for loadBlock before returning the copy.
	loadStarted chan struct{}
	loadBlock   chan struct{}
}

func newMemStore() *memStore {
	return &memStore{states: make(map[int]domain.ZoneState)}
}

func (s *memStore) LoadAll(context.Context) (map[int]domain.ZoneState, error) {
	s.mu.Lock()
	out := make(map[int]domain.ZoneState, len(s.states))
	for id, st := range s.states {
		out[id] = st.Clone()
	}
	block := s.loadBlock
	s.loadBlock = nil
	s.mu.Unlock()

	if block != nil {
		close(s.loadStarted)
		<-block
	}
	return out, nil
}

func (s *memStore) SaveAll(_ context.Context, states []domain.ZoneState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	for _, st := range states {
		s.states[st.ZoneID] = st.Clone()
	}
	return nil
}

type announcement struct {
	channel string
	text    string
}

type fakePublisher struct {
	mu     sync.Mutex
	sent   []announcement
	failOn string
}

func (p *fakePublisher) Publish(_ context.Context, channel, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn != "" && len(text) >= len(p.failOn) && text[:len(p.failOn)] == p.failOn {
		return errors.New("telegram: Too Many Requests")
	}
	p.sent = append(p.sent, announcement{channel: channel, text: text})
	return nil
}

type staticSettings struct {
	settings domain.Settings
}

func (s staticSettings) Get(context.Context) (domain.Settings, error) {
	return s.settings, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testZones = []domain.Zone{
	{ID: 0, Name: "Чернігівський район"},
	{ID: 1, Name: "Ніжинський район"},
	{ID: 2, Name: "Прилуцький район"},
}

type pollerFixture struct {
	poller    *zones.Poller
	feed      *scriptedFeed
	store     *memStore
	publisher *fakePublisher
	clock     *clock
}

func newPollerFixture(settings domain.Settings, cooldown time.Duration, snapshots ...zones.Snapshot) *pollerFixture {
	f := &pollerFixture{
		feed:      &scriptedFeed{snapshots: snapshots},
		store:     newMemStore(),
		publisher: &fakePublisher{},
		clock:     &clock{now: time.Date(2025, 3, 1, 8, 5, 0, 0, time.UTC)},
	}
	f.poller = zones.New(zones.Config{
		Zones:     testZones,
		Feed:      f.feed,
		Store:     f.store,
		Publisher: f.publisher,
		Settings:  staticSettings{settings: settings},
		Step:      zones.StepConfig{ConfirmCount: 2, Cooldown: cooldown},
		UIDOffset: 1,
		Alphabet:  zones.ParseAlphabet("A"),
		Location:  time.UTC,
		Now:       f.clock.Now,
	})
	return f
}

func enabled() domain.Settings {
	return domain.Settings{AlertsEnabled: true, TargetChannel: "@siver_news", AlertsChannel: "@siver_alerts"}
}

func (f *pollerFixture) tick(t *testing.T) zones.TickResult {
	t.Helper()
	res, err := f.poller.Tick(context.Background())
	require.NoError(t, err)
	f.clock.Advance(30 * time.Second)
	return res
}

func TestPoller_ScenarioC_BatchedTurnOn(t *testing.T) {
	t.Parallel()

	// Offset 1: zone i reads character i+1.
	f := newPollerFixture(enabled(), time.Minute, "xNNN", "xANA", "xANA")

	first := f.tick(t)
	assert.Empty(t, first.TurnedOn)

	second := f.tick(t)
	assert.Empty(t, second.TurnedOn)
	assert.Empty(t, f.publisher.sent)

	third := f.tick(t)
	assert.Equal(t, []string{"Чернігівський район", "Прилуцький район"}, third.TurnedOn)
	require.Len(t, f.publisher.sent, 1)
	assert.Equal(t, announcement{
		channel: "@siver_alerts",
		text:    "🛑 Повітряна тривога: Чернігівський район, Прилуцький район",
	}, f.publisher.sent[0])
}

func TestPoller_OnAndOffInOneTick(t *testing.T) {
	t.Parallel()

	settings := enabled()
	settings.AlertsIncludeTime = true
	f := newPollerFixture(settings, 0, "xANN", "xNAN", "xNAN")

	f.tick(t)
	f.tick(t)
	res := f.tick(t)

	assert.Equal(t, []string{"Ніжинський район"}, res.TurnedOn)
	assert.Equal(t, []string{"Чернігівський район"}, res.TurnedOff)
	require.Len(t, f.publisher.sent, 2)
	assert.Equal(t, "🛑 Повітряна тривога: Ніжинський район | 08:06", f.publisher.sent[0].text)
	assert.Equal(t, "✅ Відбій повітряної тривоги: Чернігівський район | 08:06", f.publisher.sent[1].text)
}

func TestPoller_FailedAnnouncementDoesNotBlockTheOther(t *testing.T) {
	t.Parallel()

	f := newPollerFixture(enabled(), 0, "xANN", "xNAN", "xNAN")
	f.publisher.failOn = "🛑"

	f.tick(t)
	f.tick(t)
	f.tick(t)

	require.Len(t, f.publisher.sent, 1)
	assert.Equal(t, "✅ Відбій повітряної тривоги: Чернігівський район", f.publisher.sent[0].text)
}

func TestPoller_CooldownSuppressesFlapping(t *testing.T) {
	t.Parallel()

	f := newPollerFixture(enabled(), 5*time.Minute, "xNNN", "xANN", "xANN", "xNNN", "xNNN")

	f.tick(t)
	f.tick(t)
	on := f.tick(t)
	assert.Equal(t, []string{"Чернігівський район"}, on.TurnedOn)

	f.tick(t)
	off := f.tick(t)
	assert.Empty(t, off.TurnedOff)
	assert.Equal(t, 1, off.Suppressed)
	assert.Len(t, f.publisher.sent, 1)

	statuses, err := f.poller.Statuses(context.Background())
	require.NoError(t, err)
	assert.False(t, *statuses[0].State.Confirmed, "suppressed transition still commits")
}

func TestPoller_FetchFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	f := newPollerFixture(enabled(), 0, "xNNN", "xANN")
	f.tick(t)
	f.tick(t)
	savesBefore := f.store.saves

	f.feed.err = errors.New("connection refused")
	res, err := f.poller.Tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, zones.SkipFetchError, res.Skipped)
	assert.Equal(t, savesBefore, f.store.saves)

	statuses, err := f.poller.Statuses(context.Background())
	require.NoError(t, err)
	require.NotNil(t, statuses[0].State.Pending)
	assert.Equal(t, 1, statuses[0].State.Pending.Count)

	f.feed.err = nil
	res, err = f.poller.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Чернігівський район"}, res.TurnedOn)
}

func TestPoller_SaveFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	f := newPollerFixture(enabled(), 0, "xNNN", "xANN", "xANN")
	f.tick(t)
	f.tick(t)

	f.store.saveErr = errors.New("disk full")
	_, err := f.poller.Tick(context.Background())
	require.Error(t, err)
	assert.Empty(t, f.publisher.sent)

	statuses, err := f.poller.Statuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, statuses[0].State.Pending.Count)
}

func TestPoller_ResumesFromStoredState(t *testing.T) {
	t.Parallel()

	f := newPollerFixture(enabled(), 0, "xANN")
	active, inactive := true, false
	f.store.states[0] = domain.ZoneState{ZoneID: 0, Confirmed: &inactive, Pending: &domain.PendingRun{Value: true, Count: 1}}
	f.store.states[1] = domain.ZoneState{ZoneID: 1, Confirmed: &active}

	res := f.tick(t)
	assert.Equal(t, []string{"Чернігівський район"}, res.TurnedOn)
	assert.Empty(t, res.TurnedOff, "zone 1 only starts a run")
}

func TestPoller_SlowStatusLoadKeepsTickState(t *testing.T) {
	t.Parallel()

	f := newPollerFixture(enabled(), 0, "xANN")
	inactive := false
	f.store.states[0] = domain.ZoneState{ZoneID: 0, Confirmed: &inactive, Pending: &domain.PendingRun{Value: true, Count: 1}}
	f.store.loadStarted = make(chan struct{})
	f.store.loadBlock = make(chan struct{})

	type statusResult struct {
		statuses []zones.ZoneStatus
		err      error
	}
	done := make(chan statusResult, 1)
	go func() {
		statuses, err := f.poller.Statuses(context.Background())
		done <- statusResult{statuses: statuses, err: err}
	}()
	<-f.store.loadStarted

	res := f.tick(t)
	require.Equal(t, []string{"Чернігівський район"}, res.TurnedOn)

	close(f.store.loadBlock)
	got := <-done
	require.NoError(t, got.err)
	require.NotNil(t, got.statuses[0].State.Confirmed)
	assert.True(t, *got.statuses[0].State.Confirmed)

	again, err := f.poller.Statuses(context.Background())
	require.NoError(t, err)
	require.NotNil(t, again[0].State.Confirmed)
	assert.True(t, *again[0].State.Confirmed)
}

func TestPoller_Skips(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings domain.Settings
		want     string
	}{
		{name: "alerts disabled", settings: domain.Settings{TargetChannel: "@x_news"}, want: zones.SkipDisabled},
		{name: "no channel", settings: domain.Settings{AlertsEnabled: true}, want: zones.SkipNoChannel},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newPollerFixture(tt.settings, 0, "xAAA")
			res, err := f.poller.Tick(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Skipped)
			assert.Zero(t, f.store.saves)
		})
	}

	t.Run("no zones", func(t *testing.T) {
		t.Parallel()

		p := zones.New(zones.Config{})
		res, err := p.Tick(context.Background())
		require.NoError(t, err)
		assert.Equal(t, zones.SkipNoZones, res.Skipped)
		require.NoError(t, p.Run(context.Background()))
	})
}

func TestPoller_RejectsOverlappingTicks(t *testing.T) {
	t.Parallel()

	f := newPollerFixture(enabled(), 0, "xNNN")
	f.feed.started = make(chan struct{})
	f.feed.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.poller.Tick(context.Background())
		done <- err
	}()

	<-f.feed.started
	_, err := f.poller.Tick(context.Background())
	require.ErrorIs(t, err, zones.ErrTickInProgress)

	close(f.feed.block)
	require.NoError(t, <-done)
}
