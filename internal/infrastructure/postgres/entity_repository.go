package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hszk-dev/fronttube/internal/domain/model"
	"github.com/hszk-dev/fronttube/internal/domain/repository"
	"github.com/hszk-dev/fronttube/internal/infrastructure/metrics"
	"github.com/hszk-dev/fronttube/internal/infrastructure/snapshot"
)

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EntityRepository implements repository.EntityStore for one kind using PostgreSQL.
type EntityRepository[T model.Entity] struct {
	db    DBTX
	table string
	now   func() time.Time

	selectOne  string
	selectMany string
	upsert     string
	delete     string
}

// NewEntityRepository creates the repository for kind.
func NewEntityRepository[T model.Entity](db DBTX, kind model.Kind) (*EntityRepository[T], error) {
	table, err := snapshot.TableName(kind)
	if err != nil {
		return nil, err
	}

	return &EntityRepository[T]{
		db:    db,
		table: table,
		now:   time.Now,

		selectOne: fmt.Sprintf(`
		SELECT hash, canonical_url, payload, last_synced_at, created_at, updated_at
		FROM %s
		WHERE hash = $1
	`, table),
		selectMany: fmt.Sprintf(`
		SELECT hash, canonical_url, payload, last_synced_at, created_at, updated_at
		FROM %s
		WHERE hash = ANY($1)
	`, table),
		upsert: fmt.Sprintf(`
		INSERT INTO %s (hash, canonical_url, payload, last_synced_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (hash) DO UPDATE
		SET canonical_url = EXCLUDED.canonical_url,
			payload = EXCLUDED.payload,
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`, table),
		delete: fmt.Sprintf(`DELETE FROM %s WHERE hash = $1`, table),
	}, nil
}

// FindByHash retrieves the snapshot stored under hash.
func (r *EntityRepository[T]) FindByHash(ctx context.Context, hash uint64) (T, error) {
	var zero T
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, r.table).Inc()

	row, err := scanRow(r.db.QueryRow(ctx, r.selectOne, snapshot.ToSigned(hash)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, repository.ErrNotFound
		}
		return zero, repository.StorageError("failed to get "+r.table+" by hash", err)
	}

	entity, err := snapshot.ToEntity[T](row)
	if err != nil {
		return zero, repository.StorageError("failed to decode "+r.table+" row", err)
	}
	return entity, nil
}

// FindManyByHash retrieves all requested snapshots in a single query.
func (r *EntityRepository[T]) FindManyByHash(ctx context.Context, hashes []uint64) ([]T, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, r.table).Inc()

	args := make([]int64, len(hashes))
	for i, h := range hashes {
		args[i] = snapshot.ToSigned(h)
	}

	rows, err := r.db.Query(ctx, r.selectMany, args)
	if err != nil {
		return nil, repository.StorageError("failed to query "+r.table+" by hashes", err)
	}
	defer rows.Close()

	found := make(map[uint64]T, len(hashes))
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, repository.StorageError("failed to scan "+r.table+" row", err)
		}
		entity, err := snapshot.ToEntity[T](row)
		if err != nil {
			return nil, repository.StorageError("failed to decode "+r.table+" row", err)
		}
		found[row.Hash] = entity
	}

	if err := rows.Err(); err != nil {
		return nil, repository.StorageError("error iterating "+r.table, err)
	}

	return snapshot.Order(hashes, found), nil
}

// Upsert inserts or overwrites the row keyed by entity's hash.
// The stored creation time is written back to the entity.
func (r *EntityRepository[T]) Upsert(ctx context.Context, entity T) error {
	row, err := snapshot.FromEntity(entity, r.now())
	if err != nil {
		return err
	}
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpsert, r.table).Inc()

	var createdAt time.Time
	err = r.db.QueryRow(ctx, r.upsert,
		snapshot.ToSigned(row.Hash),
		row.CanonicalURL,
		row.Payload,
		row.LastSyncedAt,
		row.CreatedAt,
		row.UpdatedAt,
	).Scan(&createdAt)
	if err != nil {
		return repository.StorageError("failed to upsert "+r.table, err)
	}

	entity.Meta().CreatedAt = createdAt
	return nil
}

// Delete removes the row for hash.
func (r *EntityRepository[T]) Delete(ctx context.Context, hash uint64) error {
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryDelete, r.table).Inc()

	if _, err := r.db.Exec(ctx, r.delete, snapshot.ToSigned(hash)); err != nil {
		return repository.StorageError("failed to delete from "+r.table, err)
	}
	return nil
}

// scanRow scans a single row into a snapshot.Row. pgx.Rows satisfies pgx.Row.
func scanRow(row pgx.Row) (snapshot.Row, error) {
	var (
		out          snapshot.Row
		hash         int64
		lastSyncedAt *time.Time
	)

	err := row.Scan(
		&hash,
		&out.CanonicalURL,
		&out.Payload,
		&lastSyncedAt,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return snapshot.Row{}, err
	}

	out.Hash = snapshot.FromSigned(hash)
	out.LastSyncedAt = lastSyncedAt
	return out, nil
}

// Compile-time verification that EntityRepository implements repository.EntityStore.
var _ repository.EntityStore[*model.Video] = (*EntityRepository[*model.Video])(nil)
