package cache

import (
	"context"

	"github.com/hszk-dev/fronttube/internal/domain/model"
)

// EntityCache defines a hot tier above the persisted store.
// Entries are keyed by Common.Hash and expire by the tier's own TTL,
// independently of the staleness policy.
type EntityCache[T model.Entity] interface {
	// Get retrieves an entity by hash.
	// Returns the zero value and false on a miss or an expired entry.
	Get(ctx context.Context, hash uint64) (T, bool, error)

	// Set stores entity under entity.Meta().Hash.
	Set(ctx context.Context, entity T) error

	// Delete removes the entry for hash.
	// Returns nil if the entry was not cached.
	Delete(ctx context.Context, hash uint64) error

	// Clear drops every entry of this tier.
	Clear(ctx context.Context) error
}
