// Package cache implements ports.IdempotencyCache against Redis with an
// in-process LRU fallback for local mode, keyed by (user_id, request
// fingerprint) per spec §4.8 step 2.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

// RedisCache is the production ports.IdempotencyCache, backed by a Redis
// string value per key holding the JSON-encoded solution.
type RedisCache struct {
	client *redis.Client
	group  singleflight.Group
}

// NewRedisCache connects to the Redis instance described by redisURL (a
// redis:// connection string, as teacher's REDIS_URL convention expects).
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func cacheKey(userID uuid.UUID, requestHash string) string {
	return fmt.Sprintf("scheduler:idempotency:%s:%s", userID, requestHash)
}

// Get dedupes concurrent lookups for the same key via singleflight, so a
// thundering herd of retried requests for one fingerprint hits Redis once.
func (c *RedisCache) Get(ctx context.Context, requestHash string) (*domain.ScheduleSolution, bool, error) {
	v, err, _ := c.group.Do(requestHash, func() (any, error) {
		raw, err := c.client.Get(ctx, "scheduler:idempotency:"+requestHash).Bytes()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		var solution domain.ScheduleSolution
		if err := json.Unmarshal(raw, &solution); err != nil {
			return nil, fmt.Errorf("unmarshal cached solution: %w", err)
		}
		return &solution, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("idempotency cache get: %w", err)
	}
	if v == nil {
		return nil, false, nil
	}
	return v.(*domain.ScheduleSolution), true, nil
}

func (c *RedisCache) Set(ctx context.Context, requestHash string, solution *domain.ScheduleSolution, ttl time.Duration) error {
	raw, err := json.Marshal(solution)
	if err != nil {
		return fmt.Errorf("marshal solution for cache: %w", err)
	}
	if err := c.client.Set(ctx, "scheduler:idempotency:"+requestHash, raw, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error { return c.client.Close() }
