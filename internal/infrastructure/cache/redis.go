package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/fronttube/internal/domain/model"
	"github.com/hszk-dev/fronttube/internal/infrastructure/metrics"
)

const (
	// cacheKeyPrefix is the prefix for entity cache keys in Redis.
	cacheKeyPrefix = "fronttube:"

	clearScanCount = 500
)

// RedisEntityCache implements EntityCache using Redis as the backing store.
// It is the shared tier for deployments running several API instances; the
// capacity bound is delegated to the server's maxmemory eviction policy.
type RedisEntityCache[T model.Entity] struct {
	client *redis.Client
	kind   model.Kind
	ttl    time.Duration
}

// NewRedisEntityCache creates a Redis-backed cache for one kind.
func NewRedisEntityCache[T model.Entity](client *redis.Client, kind model.Kind, ttl time.Duration) *RedisEntityCache[T] {
	return &RedisEntityCache[T]{
		client: client,
		kind:   kind,
		ttl:    ttl,
	}
}

// Get retrieves an entity from Redis.
// Returns zero, false, nil on cache miss.
func (c *RedisEntityCache[T]) Get(ctx context.Context, hash uint64) (T, bool, error) {
	var zero T

	data, err := c.client.Get(ctx, c.buildKey(hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeRedis).Inc()
			return zero, false, nil
		}
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return zero, false, fmt.Errorf("redis get: %w", err)
	}

	entity := model.Blank[T]()
	if err := json.Unmarshal(data, entity); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return zero, false, fmt.Errorf("deserialize %s: %w", c.kind, err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, metrics.CacheTypeRedis).Inc()
	return entity, true, nil
}

// Set stores an entity in Redis with the configured TTL.
func (c *RedisEntityCache[T]) Set(ctx context.Context, entity T) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", c.kind, err)
	}

	if err := c.client.Set(ctx, c.buildKey(entity.Meta().Hash), data, c.ttl).Err(); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	return nil
}

// Delete removes an entity from Redis.
func (c *RedisEntityCache[T]) Delete(ctx context.Context, hash uint64) error {
	if err := c.client.Del(ctx, c.buildKey(hash)).Err(); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	return nil
}

// Clear deletes every key of this kind.
func (c *RedisEntityCache[T]) Clear(ctx context.Context) error {
	var cursor uint64
	pattern := c.kindPrefix() + "*"

	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, clearScanCount).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (c *RedisEntityCache[T]) kindPrefix() string {
	return cacheKeyPrefix + c.kind.String() + ":"
}

// buildKey constructs the Redis key for an entity hash.
func (c *RedisEntityCache[T]) buildKey(hash uint64) string {
	return c.kindPrefix() + strconv.FormatUint(hash, 16)
}

var _ EntityCache[*model.Channel] = (*RedisEntityCache[*model.Channel])(nil)
