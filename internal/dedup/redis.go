package dedup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the sorted set holding exact-key records.
const DefaultRedisKey = "siverbot:dedup"

// RedisTable keeps records in one sorted set: member = key, score = unix
// milliseconds of the last mark.
type RedisTable struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// NewRedisTable wraps a client. Empty setKey uses DefaultRedisKey; nil now
// uses time.Now.
func NewRedisTable(client *redis.Client, setKey string, now func() time.Time) *RedisTable {
	if setKey == "" {
		setKey = DefaultRedisKey
	}
	if now == nil {
		now = time.Now
	}
	return &RedisTable{client: client, key: setKey, now: now}
}

// Seen implements Table.
func (t *RedisTable) Seen(ctx context.Context, key string, window time.Duration) (bool, error) {
	score, err := t.client.ZScore(ctx, t.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup seen: %w", err)
	}

	at := time.UnixMilli(int64(score))
	return t.now().Sub(at) < window, nil
}

// Mark implements Table.
func (t *RedisTable) Mark(ctx context.Context, key string, at time.Time) error {
	member := redis.Z{Score: float64(at.UnixMilli()), Member: key}
	if err := t.client.ZAdd(ctx, t.key, member).Err(); err != nil {
		return fmt.Errorf("dedup mark: %w", err)
	}
	return nil
}

// Cleanup implements Table.
func (t *RedisTable) Cleanup(ctx context.Context, window time.Duration) (int, error) {
	// Exclusive upper bound: a record exactly window old is still kept.
	cutoff := "(" + strconv.FormatInt(t.now().Add(-window).UnixMilli(), 10)
	n, err := t.client.ZRemRangeByScore(ctx, t.key, "-inf", cutoff).Result()
	if err != nil {
		return 0, fmt.Errorf("dedup cleanup: %w", err)
	}
	return int(n), nil
}

// Flush implements Table.
func (t *RedisTable) Flush(ctx context.Context) error {
	if err := t.client.Del(ctx, t.key).Err(); err != nil {
		return fmt.Errorf("dedup flush: %w", err)
	}
	return nil
}
