package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-tracker/internal/events"
)

const statsCacheKey = "issue_stats:counts"

// StatsCache caches status-count aggregates. Implementations are best-effort:
// a cache failure must never surface to the caller.
type StatsCache interface {
	Get(ctx context.Context) (map[string]int64, bool)
	Set(ctx context.Context, counts map[string]int64)
	Invalidate(ctx context.Context)
}

// RedisStatsCache stores the counts map as JSON under a fixed key with a
// short TTL.
type RedisStatsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStatsCache constructs the cache.
func NewRedisStatsCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStatsCache {
	return &RedisStatsCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached counts, or a miss when absent or unreadable.
func (c *RedisStatsCache) Get(ctx context.Context) (map[string]int64, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, statsCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("stats cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var counts map[string]int64
	if err := json.Unmarshal(raw, &counts); err != nil {
		c.logger.Warn("stats cache payload corrupt", zap.Error(err))
		return nil, false
	}
	return counts, true
}

// Set stores the counts with the configured TTL.
func (c *RedisStatsCache) Set(ctx context.Context, counts map[string]int64) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(counts)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, statsCacheKey, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("stats cache write failed", zap.Error(err))
	}
}

// Invalidate drops the cached counts.
func (c *RedisStatsCache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, statsCacheKey).Err(); err != nil {
		c.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}

// RegisterStatsInvalidation drops the cache on every issue mutation.
func RegisterStatsInvalidation(dispatcher events.Dispatcher, cache StatsCache) {
	if dispatcher == nil || cache == nil {
		return
	}
	handler := func(ctx context.Context, _ events.Event) error {
		cache.Invalidate(ctx)
		return nil
	}
	dispatcher.Subscribe(events.EventIssueCreated, handler)
	dispatcher.Subscribe(events.EventIssueUpdated, handler)
	dispatcher.Subscribe(events.EventIssueDeleted, handler)
}
