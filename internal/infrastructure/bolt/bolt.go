// Package bolt provides an embedded key/value persisted store backed by bbolt.
package bolt

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"go.etcd.io/bbolt"

	"github.com/hszk-dev/fronttube/internal/domain/model"
	"github.com/hszk-dev/fronttube/internal/domain/repository"
	"github.com/hszk-dev/fronttube/internal/infrastructure/metrics"
	"github.com/hszk-dev/fronttube/internal/infrastructure/snapshot"
)

// Open opens (or creates) the database file at path with one bucket per kind.
func Open(path string) (*bbolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, kind := range model.Kinds {
			name, err := snapshot.TableName(kind)
			if err != nil {
				return err
			}
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return db, nil
}

// record is the stored value; the key is the 8-byte big-endian hash.
type record struct {
	CanonicalURL string          `json:"canonical_url"`
	Payload      json.RawMessage `json:"payload"`
	LastSyncedAt *time.Time      `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// EntityRepository implements repository.EntityStore for one kind on bbolt.
type EntityRepository[T model.Entity] struct {
	db     *bbolt.DB
	bucket []byte
	now    func() time.Time
}

// NewEntityRepository creates the repository for kind.
func NewEntityRepository[T model.Entity](db *bbolt.DB, kind model.Kind) (*EntityRepository[T], error) {
	name, err := snapshot.TableName(kind)
	if err != nil {
		return nil, err
	}
	return &EntityRepository[T]{db: db, bucket: []byte(name), now: time.Now}, nil
}

func (r *EntityRepository[T]) FindByHash(ctx context.Context, hash uint64) (T, error) {
	var zero T
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, string(r.bucket)).Inc()

	var (
		entity T
		found  bool
	)
	err := r.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(r.bucket).Get(key(hash))
		if v == nil {
			return nil
		}
		e, err := decode[T](hash, v)
		if err != nil {
			return err
		}
		entity, found = e, true
		return nil
	})
	if err != nil {
		return zero, repository.StorageError("failed to get "+string(r.bucket)+" by hash", err)
	}
	if !found {
		return zero, repository.ErrNotFound
	}
	return entity, nil
}

// FindManyByHash reads every hash in a single read transaction.
func (r *EntityRepository[T]) FindManyByHash(ctx context.Context, hashes []uint64) ([]T, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, string(r.bucket)).Inc()

	out := make([]T, len(hashes))
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket)
		for i, h := range hashes {
			v := b.Get(key(h))
			if v == nil {
				continue
			}
			e, err := decode[T](h, v)
			if err != nil {
				return err
			}
			out[i] = e
		}
		return nil
	})
	if err != nil {
		return nil, repository.StorageError("failed to get "+string(r.bucket)+" by hashes", err)
	}
	return out, nil
}

// Upsert writes the entity; an existing created_at is preserved.
func (r *EntityRepository[T]) Upsert(ctx context.Context, entity T) error {
	row, err := snapshot.FromEntity(entity, r.now())
	if err != nil {
		return err
	}
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpsert, string(r.bucket)).Inc()

	rec := record{
		CanonicalURL: row.CanonicalURL,
		Payload:      row.Payload,
		LastSyncedAt: row.LastSyncedAt,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}

	err = r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket)
		k := key(row.Hash)

		if existing := b.Get(k); existing != nil {
			var prev record
			if err := json.Unmarshal(existing, &prev); err != nil {
				return fmt.Errorf("decode existing record: %w", err)
			}
			rec.CreatedAt = prev.CreatedAt
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(k, data)
	})
	if err != nil {
		return repository.StorageError("failed to upsert "+string(r.bucket), err)
	}

	entity.Meta().CreatedAt = rec.CreatedAt
	return nil
}

func (r *EntityRepository[T]) Delete(ctx context.Context, hash uint64) error {
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryDelete, string(r.bucket)).Inc()

	err := r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(r.bucket).Delete(key(hash))
	})
	if err != nil {
		return repository.StorageError("failed to delete from "+string(r.bucket), err)
	}
	return nil
}

func key(hash uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, hash)
	return k
}

// decode must be called inside the transaction; v is only valid until it ends.
func decode[T model.Entity](hash uint64, v []byte) (T, error) {
	var rec record
	if err := json.Unmarshal(v, &rec); err != nil {
		var zero T
		return zero, fmt.Errorf("decode record: %w", err)
	}
	return snapshot.ToEntity[T](snapshot.Row{
		Hash:         hash,
		CanonicalURL: rec.CanonicalURL,
		Payload:      rec.Payload,
		LastSyncedAt: rec.LastSyncedAt,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	})
}

var _ repository.EntityStore[*model.Image] = (*EntityRepository[*model.Image])(nil)
