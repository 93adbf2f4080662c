package repository

import (
	"errors"
	"fmt"

	"github.com/hszk-dev/fronttube/internal/domain/model"
)

var (
	// ErrNotFound is returned when no data exists for an identity.
	// Stores return it for absent rows; providers return it for upstream 404s.
	ErrNotFound = errors.New("entity not found")

	// ErrStorage wraps persisted-store I/O failures.
	ErrStorage = errors.New("storage unavailable")

	// ErrProvider wraps upstream fetch failures.
	ErrProvider = errors.New("provider fetch failed")

	// ErrProviderUnavailable is returned when a fetch is rejected locally by the
	// circuit breaker or rate limiter without reaching the upstream.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrObjectNotFound is returned when an object does not exist in storage.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")
)

// ProviderError describes a failed upstream fetch.
type ProviderError struct {
	Kind       model.Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s %s: status %d: %v", e.Kind, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s %s: %v", e.Kind, e.URL, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// StorageError wraps err so that errors.Is(err, ErrStorage) holds.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
