// Package snapshot converts entities to and from the row envelope shared by
// every persisted store.
package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/hszk-dev/fronttube/internal/domain/model"
)

// ErrMissingHash is returned when an entity without a lookup hash is persisted.
var ErrMissingHash = errors.New("entity has no hash")

// Row is the persisted form of one entity.
type Row struct {
	Hash         uint64
	CanonicalURL string
	Payload      []byte
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var tableNames = map[model.Kind]string{
	model.KindVideo:   "videos",
	model.KindChannel: "channels",
	model.KindImage:   "images",
	model.KindCaption: "captions",
	model.KindStream:  "streams",
}

// TableName returns the table or bucket name for kind.
func TableName(kind model.Kind) (string, error) {
	name, ok := tableNames[kind]
	if !ok {
		return "", fmt.Errorf("%w: %d", model.ErrUnsupportedEntityType, kind)
	}
	return name, nil
}

// FromEntity encodes e. A zero CreatedAt is set to now on e itself so the
// caller observes the value that was written.
func FromEntity[T model.Entity](e T, now time.Time) (Row, error) {
	id, err := model.ResolveIdentity(e)
	if err != nil {
		return Row{}, err
	}

	meta := e.Meta()
	if meta.Hash == 0 {
		return Row{}, ErrMissingHash
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now.Truncate(model.TimestampPrecision)
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return Row{}, fmt.Errorf("encode %s: %w", e.Kind(), err)
	}

	return Row{
		Hash:         meta.Hash,
		CanonicalURL: id.URL(),
		Payload:      payload,
		LastSyncedAt: meta.LastSyncedAt,
		CreatedAt:    meta.CreatedAt,
		UpdatedAt:    now,
	}, nil
}

// ToEntity decodes row. Column values take precedence over the payload copy.
func ToEntity[T model.Entity](row Row) (T, error) {
	e := model.Blank[T]()
	if err := json.Unmarshal(row.Payload, e); err != nil {
		var zero T
		return zero, fmt.Errorf("decode %s: %w", e.Kind(), err)
	}

	meta := e.Meta()
	meta.Hash = row.Hash
	meta.LastSyncedAt = row.LastSyncedAt
	meta.CreatedAt = row.CreatedAt
	return e, nil
}

// Order arranges found entities in the order of hashes; absent entries are nil.
func Order[T model.Entity](hashes []uint64, found map[uint64]T) []T {
	out := make([]T, len(hashes))
	for i, h := range hashes {
		if e, ok := found[h]; ok {
			out[i] = e
		}
	}
	return out
}

// ToSigned maps a hash onto a signed 64-bit column value.
func ToSigned(hash uint64) int64 { return int64(hash) }

// FromSigned reverses ToSigned.
func FromSigned(v int64) uint64 { return uint64(v) }
