package model

// Status is the outcome of a cache lookup.
type Status uint8

const (
	// StatusHit means the entity was served from memory or from a fresh
	// persisted row, or served stale after a failed refresh (see CacheResult.Degraded).
	StatusHit Status = iota + 1
	// StatusRefreshed means the entity was fetched from the provider and written through.
	StatusRefreshed
	// StatusMiss means no data exists anywhere for the identity.
	StatusMiss
	// StatusError means the provider failed and no cached data was available.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusRefreshed:
		return "refreshed"
	case StatusMiss:
		return "miss"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CacheResult is the envelope returned by every lookup.
// Entity is non-nil iff Status is StatusHit or StatusRefreshed.
type CacheResult[T Entity] struct {
	Status   Status
	Identity RemoteIdentity
	Entity   T
	Common   *Common
	Err      error
}

// Found reports whether the result carries an entity.
func (r CacheResult[T]) Found() bool {
	return r.Status == StatusHit || r.Status == StatusRefreshed
}

// Degraded reports a stale entity served because the refresh failed.
func (r CacheResult[T]) Degraded() bool {
	return r.Status == StatusHit && r.Err != nil
}

// ErrorMessage returns the provider error text or "".
func (r CacheResult[T]) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
