// Package redis provides a shared UsageStore backend so the anonymous
// quota survives horizontal scaling: every instance increments the same
// day-keyed counters through atomic Redis operations with per-key TTL.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adaptiva/adaptiva-api/internal/domain"
)

const (
	keyPrefix         = "anon"
	countField        = "count"
	firstRequestField = "first_request"
	counterTTL        = 24 * time.Hour
)

// UsageStore implements domain.UsageStore over a Redis hash per
// (scope, value, day) key.
type UsageStore struct {
	client *redis.Client
}

// NewUsageStore creates a Redis-backed usage store.
func NewUsageStore(client *redis.Client) *UsageStore {
	return &UsageStore{client: client}
}

func counterKey(scope domain.Scope, value, day string) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, scope, value, day)
}

// Increment atomically bumps the counter, stamping first_request_at and
// the TTL on first use. The TTL replaces the in-memory sweep: Redis
// evicts rolled-over keys on its own.
func (s *UsageStore) Increment(
	ctx context.Context,
	scope domain.Scope,
	value, day string,
	now time.Time,
) (int, error) {
	key := counterKey(scope, value, day)

	pipe := s.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, countField, 1)
	pipe.HSetNX(ctx, key, firstRequestField, now.UTC().Format(time.RFC3339Nano))
	pipe.ExpireNX(ctx, key, counterTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis increment %s: %w", key, err)
	}

	return int(incr.Val()), nil
}

// Count returns the current count for the key, or zero when absent.
func (s *UsageStore) Count(
	ctx context.Context,
	scope domain.Scope,
	value, day string,
) (int, error) {
	key := counterKey(scope, value, day)

	count, err := s.client.HGet(ctx, key, countField).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis count %s: %w", key, err)
	}

	return count, nil
}

// FirstRequest returns the first-seen instant for the key.
func (s *UsageStore) FirstRequest(
	ctx context.Context,
	scope domain.Scope,
	value, day string,
) (time.Time, bool, error) {
	key := counterKey(scope, value, day)

	raw, err := s.client.HGet(ctx, key, firstRequestField).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis first-request %s: %w", key, err)
	}

	first, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse first-request %s: %w", key, err)
	}

	return first, true, nil
}

// Sweep is a no-op: per-key TTL handles eviction server-side.
func (s *UsageStore) Sweep(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}
