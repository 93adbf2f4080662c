// Package sqlite provides a single-file persisted store for single-node installs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/hszk-dev/fronttube/internal/domain/model"
	"github.com/hszk-dev/fronttube/internal/domain/repository"
	"github.com/hszk-dev/fronttube/internal/infrastructure/metrics"
	"github.com/hszk-dev/fronttube/internal/infrastructure/snapshot"
)

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS %[1]s (
		hash           INTEGER PRIMARY KEY,
		canonical_url  TEXT NOT NULL,
		payload        BLOB NOT NULL,
		last_synced_at TIMESTAMP,
		created_at     TIMESTAMP NOT NULL,
		updated_at     TIMESTAMP NOT NULL
	)`

// Open opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for an ephemeral database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		// WAL with synchronous=FULL keeps committed upserts durable across crashes.
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every new connection to :memory: is a fresh database.
		db.SetMaxOpenConns(1)
	}

	for _, kind := range model.Kinds {
		table, err := snapshot.TableName(kind)
		if err != nil {
			db.Close()
			return nil, err
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf(createTableSQL, table)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}

	return db, nil
}

// EntityRepository implements repository.EntityStore for one kind on SQLite.
type EntityRepository[T model.Entity] struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// NewEntityRepository creates the repository for kind.
func NewEntityRepository[T model.Entity](db *sql.DB, kind model.Kind) (*EntityRepository[T], error) {
	table, err := snapshot.TableName(kind)
	if err != nil {
		return nil, err
	}
	return &EntityRepository[T]{db: db, table: table, now: time.Now}, nil
}

func (r *EntityRepository[T]) FindByHash(ctx context.Context, hash uint64) (T, error) {
	var zero T
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, r.table).Inc()

	query := `SELECT hash, canonical_url, payload, last_synced_at, created_at, updated_at FROM ` + r.table + ` WHERE hash = ?`
	row, err := scanRow(r.db.QueryRowContext(ctx, query, snapshot.ToSigned(hash)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

// maxBatchVars caps the bound parameters of one IN query, well below
// SQLite's SQLITE_MAX_VARIABLE_NUMBER.
var maxBatchVars = 500

// FindManyByHash looks hashes up in one query per maxBatchVars hashes.
func (r *EntityRepository[T]) FindManyByHash(ctx context.Context, hashes []uint64) ([]T, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	found := make(map[uint64]T, len(hashes))
	for start := 0; start < len(hashes); start += maxBatchVars {
		end := min(start+maxBatchVars, len(hashes))
		if err := r.findChunk(ctx, hashes[start:end], found); err != nil {
			return nil, err
		}
	}

	return snapshot.Order(hashes, found), nil
}

func (r *EntityRepository[T]) findChunk(ctx context.Context, hashes []uint64, found map[uint64]T) error {
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, r.table).Inc()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(hashes)), ",")
	args := make([]any, len(hashes))
	for i, h := range hashes {
		args[i] = snapshot.ToSigned(h)
	}

	query := `SELECT hash, canonical_url, payload, last_synced_at, created_at, updated_at FROM ` + r.table +
		` WHERE hash IN (` + placeholders + `)`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return repository.StorageError("failed to query "+r.table+" by hashes", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return repository.StorageError("failed to scan "+r.table+" row", err)
		}
		entity, err := snapshot.ToEntity[T](row)
		if err != nil {
			return repository.StorageError("failed to decode "+r.table+" row", err)
		}
		found[row.Hash] = entity
	}
	if err := rows.Err(); err != nil {
		return repository.StorageError("error iterating "+r.table, err)
	}
	return nil
}

// Upsert inserts or overwrites the row; created_at is kept on conflict.
func (r *EntityRepository[T]) Upsert(ctx context.Context, entity T) error {
	row, err := snapshot.FromEntity(entity, r.now())
	if err != nil {
		return err
	}
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpsert, r.table).Inc()

	query := `
		INSERT INTO ` + r.table + ` (hash, canonical_url, payload, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			canonical_url = excluded.canonical_url,
			payload = excluded.payload,
			last_synced_at = excluded.last_synced_at,
			updated_at = excluded.updated_at
		RETURNING created_at`

	var createdAt timestamp
	err = r.db.QueryRowContext(ctx, query,
		snapshot.ToSigned(row.Hash),
		row.CanonicalURL,
		row.Payload,
		nullTime(row.LastSyncedAt),
		row.CreatedAt.UTC(),
		row.UpdatedAt.UTC(),
	).Scan(&createdAt)
	if err != nil {
		return repository.StorageError("failed to upsert "+r.table, err)
	}

	entity.Meta().CreatedAt = createdAt.Time
	return nil
}

func (r *EntityRepository[T]) Delete(ctx context.Context, hash uint64) error {
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryDelete, r.table).Inc()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM `+r.table+` WHERE hash = ?`, snapshot.ToSigned(hash)); err != nil {
		return repository.StorageError("failed to delete from "+r.table, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (snapshot.Row, error) {
	var (
		out                              snapshot.Row
		hash                             int64
		lastSyncedAt, createdAt, updated timestamp
	)

	if err := s.Scan(&hash, &out.CanonicalURL, &out.Payload, &lastSyncedAt, &createdAt, &updated); err != nil {
		return snapshot.Row{}, err
	}

	out.Hash = snapshot.FromSigned(hash)
	out.CreatedAt = createdAt.Time
	out.UpdatedAt = updated.Time
	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		out.LastSyncedAt = &t
	}
	return out, nil
}

// timestamp scans TIMESTAMP columns, which the driver may hand back either
// parsed or as text (RETURNING clauses carry no declared type).
type timestamp struct {
	Time  time.Time
	Valid bool
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
}

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = timestamp{}
		return nil
	case time.Time:
		*t = timestamp{Time: v, Valid: true}
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	case int64:
		*t = timestamp{Time: time.Unix(v, 0).UTC(), Valid: true}
		return nil
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *timestamp) parse(s string) error {
	// time.Time.String() appends a monotonic clock reading after the zone.
	if i := strings.Index(s, " m="); i >= 0 {
		s = s[:i]
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = timestamp{Time: parsed, Valid: true}
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

var _ repository.EntityStore[*model.Caption] = (*EntityRepository[*model.Caption])(nil)
