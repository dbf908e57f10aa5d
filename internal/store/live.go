package store

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisCounters keeps per-label scan counts in a single redis hash.
type RedisCounters struct {
	client *redis.Client
	key    string
}

// NewRedisCounters builds counters stored under key.
func NewRedisCounters(client *redis.Client, key string) *RedisCounters {
	if key == "" {
		key = "checkin:live"
	}
	return &RedisCounters{client: client, key: key}
}

// Incr bumps the counter for label.
func (c *RedisCounters) Incr(ctx context.Context, label string) error {
	return c.client.HIncrBy(ctx, c.key, label, 1).Err()
}

// Count returns the counter for label, zero when unseen.
func (c *RedisCounters) Count(ctx context.Context, label string) (int64, error) {
	n, err := c.client.HGet(ctx, c.key, label).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// MemoryCounters is the in-process variant used with the memory queue.
type MemoryCounters struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryCounters creates empty counters.
func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{counts: make(map[string]int64)}
}

func (c *MemoryCounters) Incr(_ context.Context, label string) error {
	c.mu.Lock()
	c.counts[label]++
	c.mu.Unlock()
	return nil
}

func (c *MemoryCounters) Count(_ context.Context, label string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[label], nil
}
