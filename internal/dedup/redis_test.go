package dedup_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yari4ek89/siverbotv2/internal/dedup"
)

func newRedisTable(t *testing.T, clock *fakeClock) (*dedup.RedisTable, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return dedup.NewRedisTable(client, "", clock.Now), mr
}

func TestRedisTable_SeenAndCleanup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newClock()
	table, mr := newRedisTable(t, clock)

	seen, err := table.Seen(ctx, "k1", window)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, table.Mark(ctx, "k1", clock.Now()))
	require.NoError(t, table.Mark(ctx, "k2", clock.Now().Add(-2*window)))

	seen, err = table.Seen(ctx, "k1", window)
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = table.Seen(ctx, "k2", window)
	require.NoError(t, err)
	assert.False(t, seen)

	removed, err := table.Cleanup(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	members, err := mr.ZMembers(dedup.DefaultRedisKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, members)

	clock.Advance(window)
	seen, err = table.Seen(ctx, "k1", window)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisTable_Flush(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newClock()
	table, mr := newRedisTable(t, clock)

	require.NoError(t, table.Mark(ctx, "k1", clock.Now()))
	require.NoError(t, table.Flush(ctx))

	assert.False(t, mr.Exists(dedup.DefaultRedisKey))
}

func TestRedisTable_EngineRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newClock()
	table, _ := newRedisTable(t, clock)
	e := dedup.NewEngine(table, dedup.WithClock(clock.Now))

	v, err := e.Check(ctx, routed("Прилуки"), window)
	require.NoError(t, err)
	require.NoError(t, e.Commit(ctx, v))

	clock.Advance(time.Minute)
	dup, err := e.Check(ctx, routed("Прилуки"), window)
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
}
