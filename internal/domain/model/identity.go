package model

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

// Kind identifies one of the cacheable remote entity types.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindVideo
	KindChannel
	KindImage
	KindCaption
	KindStream
)

// Kinds lists every supported kind in a stable order.
var Kinds = []Kind{KindVideo, KindChannel, KindImage, KindCaption, KindStream}

var (
	ErrUnsupportedEntityType = errors.New("unsupported entity type")
	ErrInvalidURL            = errors.New("identity URL must be absolute")
)

func (k Kind) IsValid() bool {
	return k >= KindVideo && k <= KindStream
}

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindChannel:
		return "channel"
	case KindImage:
		return "image"
	case KindCaption:
		return "caption"
	case KindStream:
		return "stream"
	default:
		return "unknown"
	}
}

// ParseKind converts the lower-case kind name used in URLs and config.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnsupportedEntityType, s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedEntityType, k)
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// RemoteIdentity is the canonical (kind, absolute URL) pair of a remote entity.
// It is immutable; the hash of the normalized URL is computed once on creation.
type RemoteIdentity struct {
	kind Kind
	url  string
	hash uint64
}

// NewRemoteIdentity validates and normalizes rawURL for the given kind.
func NewRemoteIdentity(kind Kind, rawURL string) (RemoteIdentity, error) {
	if !kind.IsValid() {
		return RemoteIdentity{}, fmt.Errorf("%w: %d", ErrUnsupportedEntityType, kind)
	}

	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return RemoteIdentity{}, err
	}

	return RemoteIdentity{
		kind: kind,
		url:  normalized,
		hash: HashURL(normalized),
	}, nil
}

// MustRemoteIdentity is NewRemoteIdentity for static inputs; it panics on error.
func MustRemoteIdentity(kind Kind, rawURL string) RemoteIdentity {
	id, err := NewRemoteIdentity(kind, rawURL)
	if err != nil {
		panic(err)
	}
	return id
}

func (id RemoteIdentity) Kind() Kind     { return id.kind }
func (id RemoteIdentity) URL() string    { return id.url }
func (id RemoteIdentity) Hash() uint64   { return id.hash }
func (id RemoteIdentity) IsZero() bool   { return id.kind == KindUnknown && id.url == "" }
func (id RemoteIdentity) String() string { return id.kind.String() + ":" + id.url }

// Equal reports whether both identities name the same remote entity.
func (id RemoteIdentity) Equal(other RemoteIdentity) bool {
	return id.kind == other.kind && id.url == other.url
}

type identityJSON struct {
	Kind Kind   `json:"kind"`
	URL  string `json:"url"`
}

func (id RemoteIdentity) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(identityJSON{Kind: id.kind, URL: id.url})
}

func (id *RemoteIdentity) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = RemoteIdentity{}
		return nil
	}

	var v identityJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	parsed, err := NewRemoteIdentity(v.Kind, v.URL)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// HashURL returns the 64-bit xxHash of an already normalized URL.
func HashURL(normalizedURL string) uint64 {
	return xxhash.Sum64String(normalizedURL)
}

// NormalizeURL canonicalizes an absolute URL so that equivalent spellings
// produce the same identity hash.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if host, port, err := net.SplitHostPort(u.Host); err == nil {
		if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
			u.Host = host
		}
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}
	if u.Path == "/" && u.RawQuery == "" {
		u.Path = ""
	}

	return u.String(), nil
}
