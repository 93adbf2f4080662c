package repository

import (
	"context"

	"github.com/hszk-dev/fronttube/internal/domain/model"
)

// Provider fetches a fresh snapshot of a remote entity.
// Implementations return ErrNotFound when the upstream reports the entity does
// not exist and a *ProviderError for any other failure. The returned entity's
// Identity is the canonical identity the upstream resolved to.
type Provider[T model.Entity] interface {
	Fetch(ctx context.Context, id model.RemoteIdentity) (T, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc[T model.Entity] func(ctx context.Context, id model.RemoteIdentity) (T, error)

func (f ProviderFunc[T]) Fetch(ctx context.Context, id model.RemoteIdentity) (T, error) {
	return f(ctx, id)
}
