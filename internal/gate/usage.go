package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisUsageCounter keeps live per-tenant resource counts in Redis. Counters
// are incremented by the resource handlers on create/delete and rebuilt from
// the store by the nightly recount job.
type RedisUsageCounter struct {
	client *redis.Client
}

// NewRedisUsageCounter constructs a RedisUsageCounter.
func NewRedisUsageCounter(client *redis.Client) *RedisUsageCounter {
	return &RedisUsageCounter{client: client}
}

// CurrentUsage returns the live count for the tenant and kind. A missing key
// counts as zero.
func (c *RedisUsageCounter) CurrentUsage(ctx context.Context, tenantID string, kind ResourceKind) (int, error) {
	n, err := c.client.Get(ctx, usageKey(tenantID, kind)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("gate: usage get: %w", err)
	}
	return n, nil
}

// Increment adds delta to the counter. Negative deltas decrement.
func (c *RedisUsageCounter) Increment(ctx context.Context, tenantID string, kind ResourceKind, delta int) error {
	if err := c.client.IncrBy(ctx, usageKey(tenantID, kind), int64(delta)).Err(); err != nil {
		return fmt.Errorf("gate: usage incr: %w", err)
	}
	return nil
}

// Set overwrites the counter, used by the recount job.
func (c *RedisUsageCounter) Set(ctx context.Context, tenantID string, kind ResourceKind, value int) error {
	if err := c.client.Set(ctx, usageKey(tenantID, kind), value, 0).Err(); err != nil {
		return fmt.Errorf("gate: usage set: %w", err)
	}
	return nil
}

func usageKey(tenantID string, kind ResourceKind) string {
	return "usage:" + tenantID + ":" + string(kind)
}
