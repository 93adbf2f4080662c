package repository

import (
	"context"

	"github.com/hszk-dev/fronttube/internal/domain/model"
)

// EntityStore defines persistence of entity snapshots keyed by identity hash.
// Implementations are the durability boundary: once Upsert returns nil the row
// must survive a crash.
type EntityStore[T model.Entity] interface {
	// FindByHash retrieves the snapshot stored under hash.
	// Returns ErrNotFound if no row exists.
	FindByHash(ctx context.Context, hash uint64) (T, error)

	// FindManyByHash retrieves several snapshots in one round trip.
	// The result has the same length and order as hashes; absent rows are nil.
	FindManyByHash(ctx context.Context, hashes []uint64) ([]T, error)

	// Upsert inserts the entity or overwrites the row with the same hash.
	// The original creation time of an existing row is preserved.
	Upsert(ctx context.Context, entity T) error

	// Delete removes the row for hash. Deleting an absent row is not an error.
	Delete(ctx context.Context, hash uint64) error
}
