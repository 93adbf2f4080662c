package model

import (
	"fmt"
	"reflect"
	"time"
)

// Entity is a cacheable snapshot of a remote object.
type Entity interface {
	Kind() Kind
	Meta() *Common
}

// Common holds the bookkeeping fields shared by every cacheable entity.
type Common struct {
	// Hash is the lookup key: the hash of the identity the entity was requested by.
	Hash uint64 `json:"hash"`
	// Identity is the canonical identity reported by the provider. It may differ
	// from the requested identity when the provider redirected.
	Identity RemoteIdentity `json:"identity"`
	// LastSyncedAt is nil only for placeholder rows that were never fetched.
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (c *Common) Meta() *Common { return c }

// TimestampPrecision is the finest resolution every persisted store keeps.
// Postgres TIMESTAMPTZ stores microseconds.
const TimestampPrecision = time.Microsecond

// MarkSynced records a successful provider sync at t, truncated to
// TimestampPrecision so the stored row reads back equal.
func (c *Common) MarkSynced(t time.Time) {
	synced := t.Truncate(TimestampPrecision)
	c.LastSyncedAt = &synced
	if c.CreatedAt.IsZero() {
		c.CreatedAt = synced
	}
}

type Video struct {
	Common

	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	Author       string        `json:"author"`
	ChannelURL   string        `json:"channel_url,omitempty"`
	Duration     time.Duration `json:"duration"`
	ViewCount    int64         `json:"view_count"`
	LikeCount    int64         `json:"like_count"`
	PublishedAt  time.Time     `json:"published_at"`
	ThumbnailURL string        `json:"thumbnail_url,omitempty"`
	Keywords     []string      `json:"keywords,omitempty"`
	LiveNow      bool          `json:"live_now"`
}

func (*Video) Kind() Kind { return KindVideo }

type Channel struct {
	Common

	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	SubscriberCount int64  `json:"subscriber_count"`
	AvatarURL       string `json:"avatar_url,omitempty"`
	BannerURL       string `json:"banner_url,omitempty"`
	Verified        bool   `json:"verified"`
}

func (*Channel) Kind() Kind { return KindChannel }

type Image struct {
	Common

	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	// ObjectKey locates the archived bytes in object storage.
	ObjectKey string `json:"object_key,omitempty"`
}

func (*Image) Kind() Kind { return KindImage }

type Caption struct {
	Common

	VideoURL      string `json:"video_url"`
	Label         string `json:"label"`
	LanguageCode  string `json:"language_code"`
	AutoGenerated bool   `json:"auto_generated"`
	// Content is the WebVTT document.
	Content string `json:"content"`
}

func (*Caption) Kind() Kind { return KindCaption }

type Stream struct {
	Common

	VideoURL    string `json:"video_url"`
	Itag        int    `json:"itag"`
	Container   string `json:"container"`
	MimeType    string `json:"mime_type"`
	Quality     string `json:"quality"`
	Resolution  string `json:"resolution,omitempty"`
	Bitrate     int64  `json:"bitrate"`
	PlaybackURL string `json:"playback_url"`
}

func (*Stream) Kind() Kind { return KindStream }

// ResolveIdentity returns the identity stored on e. It fails with
// ErrUnsupportedEntityType for types outside the closed entity set and when the
// stored identity's kind disagrees with the concrete type.
func ResolveIdentity(e Entity) (RemoteIdentity, error) {
	var kind Kind
	switch e.(type) {
	case *Video:
		kind = KindVideo
	case *Channel:
		kind = KindChannel
	case *Image:
		kind = KindImage
	case *Caption:
		kind = KindCaption
	case *Stream:
		kind = KindStream
	default:
		return RemoteIdentity{}, fmt.Errorf("%w: %T", ErrUnsupportedEntityType, e)
	}

	id := e.Meta().Identity
	if id.IsZero() {
		return RemoteIdentity{}, fmt.Errorf("%w: %s entity has no identity", ErrInvalidURL, kind)
	}
	if id.Kind() != kind {
		return RemoteIdentity{}, fmt.Errorf("%w: %s identity on %T", ErrUnsupportedEntityType, id.Kind(), e)
	}
	return id, nil
}

// NewEntity returns an empty entity of the given kind.
func NewEntity(kind Kind) (Entity, error) {
	switch kind {
	case KindVideo:
		return &Video{}, nil
	case KindChannel:
		return &Channel{}, nil
	case KindImage:
		return &Image{}, nil
	case KindCaption:
		return &Caption{}, nil
	case KindStream:
		return &Stream{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedEntityType, kind)
	}
}

// Blank returns a new, empty entity of the concrete pointer type T.
func Blank[T Entity]() T {
	var zero T
	rt := reflect.TypeOf(zero)
	if rt == nil || rt.Kind() != reflect.Pointer {
		panic(fmt.Sprintf("model.Blank: %T is not a concrete entity pointer", zero))
	}
	return reflect.New(rt.Elem()).Interface().(T)
}

// IsNil reports whether e is nil or a typed nil pointer.
func IsNil(e Entity) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
