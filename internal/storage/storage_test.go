package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yari4ek89/siverbotv2/internal/domain"
	"github.com/yari4ek89/siverbotv2/internal/logger"
	"github.com/yari4ek89/siverbotv2/internal/storage"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, storage.RunMigrations(db, logger.NewNop()))
	return db
}

func ptr[T any](v T) *T { return &v }

func TestRunMigrations_Idempotent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	require.NoError(t, storage.RunMigrations(db, logger.NewNop()))

	version, dirty, err := storage.MigrationVersion(db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestSettingsRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	defaults := domain.Settings{
		Mode:               domain.ModeManual,
		AllowedRegions:     []domain.RegionID{domain.RegionChernihiv, domain.RegionSumy},
		DedupWindowMinutes: 60,
		AlertsEnabled:      true,
	}
	repo := storage.NewSettingsRepository(newTestDB(t), defaults)

	got, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaults, got)

	mode := domain.ModeAuto
	got, err = repo.Patch(ctx, domain.SettingsPatch{
		Mode:           &mode,
		TargetChannel:  ptr("https://t.me/siver_news"),
		AllowedRegions: &[]domain.RegionID{"суми"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ModeAuto, got.Mode)
	assert.Equal(t, "@siver_news", got.TargetChannel)
	assert.Equal(t, []domain.RegionID{domain.RegionSumy}, got.AllowedRegions)
	assert.Equal(t, 60, got.DedupWindowMinutes)

	got, err = repo.Patch(ctx, domain.SettingsPatch{AlertsIncludeTime: ptr(true)})
	require.NoError(t, err)
	assert.True(t, got.AlertsIncludeTime)
	assert.Equal(t, domain.ModeAuto, got.Mode)

	bad := domain.Mode("sometimes")
	_, err = repo.Patch(ctx, domain.SettingsPatch{Mode: &bad})
	require.ErrorIs(t, err, domain.ErrInvalidMode)

	_, err = repo.Patch(ctx, domain.SettingsPatch{DedupWindowMinutes: ptr(0)})
	require.ErrorIs(t, err, domain.ErrInvalidSetting)
}

func TestSourceRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := storage.NewSourceRepository(newTestDB(t))

	name, err := repo.Add(ctx, "@Monitor_UA")
	require.NoError(t, err)
	assert.Equal(t, "monitor_ua", name)

	_, err = repo.Add(ctx, "t.me/monitor_ua")
	require.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = repo.Add(ctx, "@x")
	require.ErrorIs(t, err, domain.ErrInvalidSource)

	_, err = repo.Add(ctx, "chernihiv_now")
	require.NoError(t, err)

	names, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"chernihiv_now", "monitor_ua"}, names)

	ok, err := repo.Contains(ctx, "monitor_ua")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.Remove(ctx, "@monitor_ua"))
	require.ErrorIs(t, repo.Remove(ctx, "@monitor_ua"), domain.ErrNotFound)

	ok, err = repo.Contains(ctx, "monitor_ua")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPlaceRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := storage.NewPlaceRepository(newTestDB(t))

	name, err := repo.Add(ctx, domain.RegionChernihiv, "  Остер ")
	require.NoError(t, err)
	assert.Equal(t, "остер", name)

	_, err = repo.Add(ctx, domain.RegionChernihiv, "ОСТЕР")
	require.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = repo.Add(ctx, domain.RegionSumy, "Ворожба")
	require.NoError(t, err)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.RegionID][]string{
		domain.RegionChernihiv: {"остер"},
		domain.RegionSumy:      {"ворожба"},
	}, all)

	require.NoError(t, repo.Remove(ctx, domain.RegionSumy, "ворожба"))
	list, err := repo.List(ctx, domain.RegionSumy)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.ErrorIs(t, repo.Remove(ctx, domain.RegionSumy, "ворожба"), domain.ErrNotFound)
}

func TestQueueRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := storage.NewQueueRepository(newTestDB(t))
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	item := domain.QueueItem{
		Source:        "monitor_ua",
		RawText:       "Шахед курс на Чернігів",
		FormattedText: "🛸 БПЛА: Курс на Чернігів.",
		DedupHash:     "abc",
		Status:        domain.StatusPending,
		CreatedAt:     created,
	}

	id1, err := repo.Insert(ctx, item)
	require.NoError(t, err)
	id2, err := repo.Insert(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id1)
	assert.Equal(t, int64(2), id2)

	got, err := repo.Get(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, item.RawText, got.RawText)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Nil(t, got.DecidedAt)

	ok, err := repo.UpdateStatus(ctx, id1, domain.StatusPending, domain.StatusApproved, created.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UpdateStatus(ctx, id1, domain.StatusPending, domain.StatusRejected, created.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = repo.Get(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, got.Status)
	require.NotNil(t, got.DecidedAt)

	pending, err := repo.ListByStatus(ctx, domain.StatusPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id2, pending[0].ID)

	n, err := repo.CountByStatus(ctx, domain.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.Get(ctx, 99)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestZoneStateRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := storage.NewZoneStateRepository(newTestDB(t))
	sent := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	states := []domain.ZoneState{
		{ZoneID: 25, Confirmed: ptr(false), Pending: &domain.PendingRun{Value: true, Count: 1}},
		{ZoneID: 26, Confirmed: ptr(true), LastSentAt: sent},
		{ZoneID: 27},
	}
	require.NoError(t, repo.SaveAll(ctx, states))

	states[0].Pending.Count = 2
	require.NoError(t, repo.SaveAll(ctx, states[:1]))

	got, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.False(t, *got[25].Confirmed)
	assert.Equal(t, &domain.PendingRun{Value: true, Count: 2}, got[25].Pending)
	assert.True(t, *got[26].Confirmed)
	assert.Nil(t, got[26].Pending)
	assert.True(t, sent.Equal(got[26].LastSentAt))
	assert.Nil(t, got[27].Confirmed)
	assert.True(t, got[27].LastSentAt.IsZero())
}

func TestDedupRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := storage.NewDedupRepository(newTestDB(t), func() time.Time { return now })
	window := time.Hour

	seen, err := repo.Seen(ctx, "k1", window)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, repo.Mark(ctx, "k1", now.Add(-10*time.Minute)))
	require.NoError(t, repo.Mark(ctx, "k2", now.Add(-2*time.Hour)))

	seen, err = repo.Seen(ctx, "k1", window)
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = repo.Seen(ctx, "k2", window)
	require.NoError(t, err)
	assert.False(t, seen)

	removed, err := repo.Cleanup(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	require.NoError(t, repo.Flush(ctx))
	seen, err = repo.Seen(ctx, "k1", window)
	require.NoError(t, err)
	assert.False(t, seen)
}
