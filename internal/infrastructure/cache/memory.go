package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hszk-dev/fronttube/internal/domain/model"
	"github.com/hszk-dev/fronttube/internal/infrastructure/metrics"
)

// MemoryConfig bounds the in-process tier of one entity kind.
// A zero TTL keeps entries until they are evicted for capacity.
type MemoryConfig struct {
	Capacity int
	TTL      time.Duration
}

type memoryEntry[T model.Entity] struct {
	entity    T
	expiresAt time.Time
}

func (e memoryEntry[T]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCache implements EntityCache with a process-local expirable LRU.
// Each kind gets its own instance, so lookups of different kinds never share a lock.
// The LRU reclaims expired entries in the background; Get also checks expiry
// itself so an entry is absent from insertedAt + TTL onwards.
type MemoryCache[T model.Entity] struct {
	kind model.Kind
	ttl  time.Duration
	lru  *expirable.LRU[uint64, memoryEntry[T]]
	now  func() time.Time
}

// NewMemoryCache creates the memory tier for kind.
func NewMemoryCache[T model.Entity](kind model.Kind, cfg MemoryConfig) *MemoryCache[T] {
	c := &MemoryCache[T]{kind: kind, ttl: cfg.TTL, now: time.Now}

	label := kind.String()
	c.lru = expirable.NewLRU[uint64, memoryEntry[T]](cfg.Capacity, func(_ uint64, e memoryEntry[T]) {
		if e.expired(c.now()) {
			metrics.CacheEvictionsTotal.WithLabelValues(label, metrics.EvictExpired).Inc()
		}
	}, cfg.TTL)

	return c
}

func (c *MemoryCache[T]) Get(_ context.Context, hash uint64) (T, bool, error) {
	e, ok := c.lru.Get(hash)
	if ok && e.expired(c.now()) {
		c.lru.Remove(hash)
		ok = false
	}
	if !ok {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeMemory).Inc()
		var zero T
		return zero, false, nil
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, metrics.CacheTypeMemory).Inc()
	return e.entity, true, nil
}

func (c *MemoryCache[T]) Set(_ context.Context, entity T) error {
	e := memoryEntry[T]{entity: entity}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	if evicted := c.lru.Add(entity.Meta().Hash, e); evicted {
		metrics.CacheEvictionsTotal.WithLabelValues(c.kind.String(), metrics.EvictCapacity).Inc()
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess, metrics.CacheTypeMemory).Inc()
	return nil
}

func (c *MemoryCache[T]) Delete(_ context.Context, hash uint64) error {
	c.lru.Remove(hash)
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusSuccess, metrics.CacheTypeMemory).Inc()
	return nil
}

func (c *MemoryCache[T]) Clear(_ context.Context) error {
	c.lru.Purge()
	return nil
}

// Len returns the number of entries held, including expired ones not yet reclaimed.
func (c *MemoryCache[T]) Len() int {
	return c.lru.Len()
}

var _ EntityCache[*model.Video] = (*MemoryCache[*model.Video])(nil)
