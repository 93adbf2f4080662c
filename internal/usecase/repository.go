package usecase

import (
	"context"
	"fmt"

	"github.com/hszk-dev/fronttube/internal/domain/model"
)

// DataRepository owns one Manager per entity kind and dispatches
// kind-agnostic requests to them. It is constructed once at startup and
// passed explicitly to the HTTP handlers and the refresh worker.
type DataRepository struct {
	Videos   *Manager[*model.Video]
	Channels *Manager[*model.Channel]
	Images   *Manager[*model.Image]
	Captions *Manager[*model.Caption]
	Streams  *Manager[*model.Stream]
}

// NewDataRepository bundles the per-kind managers.
func NewDataRepository(
	videos *Manager[*model.Video],
	channels *Manager[*model.Channel],
	images *Manager[*model.Image],
	captions *Manager[*model.Caption],
	streams *Manager[*model.Stream],
) *DataRepository {
	return &DataRepository{
		Videos:   videos,
		Channels: channels,
		Images:   images,
		Captions: captions,
		Streams:  streams,
	}
}

// Resolve resolves id with the manager of its kind.
func (r *DataRepository) Resolve(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error) {
	switch id.Kind() {
	case model.KindVideo:
		return erased(r.Videos.Resolve(ctx, id))
	case model.KindChannel:
		return erased(r.Channels.Resolve(ctx, id))
	case model.KindImage:
		return erased(r.Images.Resolve(ctx, id))
	case model.KindCaption:
		return erased(r.Captions.Resolve(ctx, id))
	case model.KindStream:
		return erased(r.Streams.Resolve(ctx, id))
	default:
		return r.unsupported(id)
	}
}

// ResolveMany resolves ids, which must all be of kind, preserving order.
func (r *DataRepository) ResolveMany(ctx context.Context, kind model.Kind, ids []model.RemoteIdentity) ([]model.CacheResult[model.Entity], error) {
	switch kind {
	case model.KindVideo:
		return erasedMany(r.Videos.ResolveMany(ctx, ids))
	case model.KindChannel:
		return erasedMany(r.Channels.ResolveMany(ctx, ids))
	case model.KindImage:
		return erasedMany(r.Images.ResolveMany(ctx, ids))
	case model.KindCaption:
		return erasedMany(r.Captions.ResolveMany(ctx, ids))
	case model.KindStream:
		return erasedMany(r.Streams.ResolveMany(ctx, ids))
	default:
		return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedEntityType, kind)
	}
}

// Refresh forces a provider fetch for id.
func (r *DataRepository) Refresh(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error) {
	switch id.Kind() {
	case model.KindVideo:
		return erased(r.Videos.Refresh(ctx, id))
	case model.KindChannel:
		return erased(r.Channels.Refresh(ctx, id))
	case model.KindImage:
		return erased(r.Images.Refresh(ctx, id))
	case model.KindCaption:
		return erased(r.Captions.Refresh(ctx, id))
	case model.KindStream:
		return erased(r.Streams.Refresh(ctx, id))
	default:
		return r.unsupported(id)
	}
}

// Invalidate drops id from the tiers selected by scope.
func (r *DataRepository) Invalidate(ctx context.Context, id model.RemoteIdentity, scope InvalidateScope) error {
	switch id.Kind() {
	case model.KindVideo:
		return r.Videos.Invalidate(ctx, id, scope)
	case model.KindChannel:
		return r.Channels.Invalidate(ctx, id, scope)
	case model.KindImage:
		return r.Images.Invalidate(ctx, id, scope)
	case model.KindCaption:
		return r.Captions.Invalidate(ctx, id, scope)
	case model.KindStream:
		return r.Streams.Invalidate(ctx, id, scope)
	default:
		return fmt.Errorf("%w: %s", model.ErrUnsupportedEntityType, id.Kind())
	}
}

func (r *DataRepository) unsupported(id model.RemoteIdentity) (model.CacheResult[model.Entity], error) {
	err := fmt.Errorf("%w: %s", model.ErrUnsupportedEntityType, id.Kind())
	return model.CacheResult[model.Entity]{Status: model.StatusError, Identity: id, Err: err}, err
}

// erased converts a typed result into the kind-agnostic form. Entity stays a
// nil interface when the result carries no entity.
func erased[T model.Entity](res model.CacheResult[T], err error) (model.CacheResult[model.Entity], error) {
	out := model.CacheResult[model.Entity]{
		Status:   res.Status,
		Identity: res.Identity,
		Common:   res.Common,
		Err:      res.Err,
	}
	if res.Found() && !model.IsNil(res.Entity) {
		out.Entity = res.Entity
	}
	return out, err
}

func erasedMany[T model.Entity](res []model.CacheResult[T], err error) ([]model.CacheResult[model.Entity], error) {
	if err != nil {
		return nil, err
	}
	out := make([]model.CacheResult[model.Entity], len(res))
	for i := range res {
		out[i], _ = erased(res[i], nil)
	}
	return out, nil
}
