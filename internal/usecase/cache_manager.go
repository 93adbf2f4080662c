package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hszk-dev/fronttube/internal/domain/model"
	"github.com/hszk-dev/fronttube/internal/domain/repository"
	"github.com/hszk-dev/fronttube/internal/infrastructure/cache"
	"github.com/hszk-dev/fronttube/internal/infrastructure/metrics"
)

// ManagerConfig holds configuration for Manager.
type ManagerConfig struct {
	// FetchTimeout bounds a single provider fetch including the write-through.
	// The fetch is detached from the caller, so this is its only deadline.
	FetchTimeout time.Duration
	// FetchConcurrency bounds concurrent provider fetches in ResolveMany.
	FetchConcurrency int
	// EnqueueTimeout bounds publishing a deferred refresh task.
	EnqueueTimeout time.Duration
}

// DefaultManagerConfig returns the default configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		FetchTimeout:     15 * time.Second,
		FetchConcurrency: 8,
		EnqueueTimeout:   2 * time.Second,
	}
}

// ManagerDeps are the collaborators of one Manager.
type ManagerDeps[T model.Entity] struct {
	Cache    cache.EntityCache[T]
	Store    repository.EntityStore[T]
	Provider repository.Provider[T]
	// Queue receives a refresh task whenever stale data is served because the
	// provider failed. Optional.
	Queue repository.RefreshQueue
}

// InvalidateScope selects which tiers Invalidate clears.
type InvalidateScope uint8

const (
	// InvalidateMemory drops only the cache tier entry.
	InvalidateMemory InvalidateScope = iota
	// InvalidatePersisted also deletes the persisted row.
	InvalidatePersisted
)

// Manager resolves identities of one kind through memory, persisted store and
// provider, in that order.
//
// Provider failures never surface as errors: they are folded into the
// CacheResult. Storage failures are returned as the error value so callers
// can tell "not found" from "storage unavailable".
type Manager[T model.Entity] struct {
	kind     model.Kind
	cache    cache.EntityCache[T]
	store    repository.EntityStore[T]
	provider repository.Provider[T]
	queue    repository.RefreshQueue
	policy   StalenessPolicy
	flights  *flightGroup
	cfg      ManagerConfig
	now      func() time.Time
}

// NewManager creates the manager for kind.
func NewManager[T model.Entity](kind model.Kind, deps ManagerDeps[T], policy StalenessPolicy, cfg ManagerConfig) *Manager[T] {
	defaults := DefaultManagerConfig()
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaults.FetchTimeout
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = defaults.FetchConcurrency
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = defaults.EnqueueTimeout
	}

	return &Manager[T]{
		kind:     kind,
		cache:    deps.Cache,
		store:    deps.Store,
		provider: deps.Provider,
		queue:    deps.Queue,
		policy:   policy,
		flights:  &flightGroup{},
		cfg:      cfg,
		now:      time.Now,
	}
}

// Kind returns the entity kind this manager serves.
func (m *Manager[T]) Kind() model.Kind {
	return m.kind
}

// Resolve returns the entity for id.
func (m *Manager[T]) Resolve(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[T], error) {
	if err := m.checkIdentity(id); err != nil {
		return m.failed(id, err), err
	}

	if entity, ok := m.fromCache(ctx, id); ok {
		return m.record(hitResult(id, entity, nil)), nil
	}

	existing, err := m.store.FindByHash(ctx, id.Hash())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		var zero T
		existing = zero
	case err != nil:
		return m.failed(id, err), err
	}

	if !model.IsNil(existing) && !m.policy.IsStale(m.kind, existing.Meta().LastSyncedAt, m.now()) {
		m.toCache(ctx, existing)
		return m.record(hitResult(id, existing, nil)), nil
	}

	return m.fetch(ctx, id, existing, true)
}

// ResolveMany resolves ids and returns results in the same order.
// Persisted rows are looked up in a single round trip; only missing and stale
// entries reach the provider, concurrently and still coalesced per identity.
func (m *Manager[T]) ResolveMany(ctx context.Context, ids []model.RemoteIdentity) ([]model.CacheResult[T], error) {
	for _, id := range ids {
		if err := m.checkIdentity(id); err != nil {
			return nil, err
		}
	}

	results := make([]model.CacheResult[T], len(ids))

	var pending []int
	for i, id := range ids {
		if entity, ok := m.fromCache(ctx, id); ok {
			results[i] = m.record(hitResult(id, entity, nil))
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return results, nil
	}

	hashes := make([]uint64, len(pending))
	for j, i := range pending {
		hashes[j] = ids[i].Hash()
	}
	rows, err := m.store.FindManyByHash(ctx, hashes)
	if err != nil {
		return nil, err
	}
	if len(rows) != len(hashes) {
		return nil, repository.StorageError("find many",
			fmt.Errorf("store returned %d rows for %d hashes", len(rows), len(hashes)))
	}

	now := m.now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.FetchConcurrency)

	for j, i := range pending {
		id, existing := ids[i], rows[j]
		if !model.IsNil(existing) && !m.policy.IsStale(m.kind, existing.Meta().LastSyncedAt, now) {
			m.toCache(ctx, existing)
			results[i] = m.record(hitResult(id, existing, nil))
			continue
		}

		g.Go(func() error {
			res, err := m.fetch(gctx, id, existing, true)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Refresh fetches id from the provider regardless of staleness.
// It never enqueues a deferred refresh; the caller owns retries.
func (m *Manager[T]) Refresh(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[T], error) {
	if err := m.checkIdentity(id); err != nil {
		return m.failed(id, err), err
	}

	existing, err := m.store.FindByHash(ctx, id.Hash())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		var zero T
		existing = zero
	case err != nil:
		return m.failed(id, err), err
	}

	return m.fetch(ctx, id, existing, false)
}

// Invalidate drops id from the cache tier and, for InvalidatePersisted, from
// the persisted store.
func (m *Manager[T]) Invalidate(ctx context.Context, id model.RemoteIdentity, scope InvalidateScope) error {
	if err := m.checkIdentity(id); err != nil {
		return err
	}

	if err := m.cache.Delete(ctx, id.Hash()); err != nil {
		slog.Warn("failed to invalidate cache entry",
			"kind", m.kind.String(),
			"hash", id.Hash(),
			"error", err,
		)
	}

	if scope == InvalidatePersisted {
		return m.store.Delete(ctx, id.Hash())
	}
	return nil
}

// fetchOutcome is what the shared in-flight fetch hands to every waiter.
type fetchOutcome[T model.Entity] struct {
	entity   T
	cached   bool
	fetchErr error
	storeErr error
}

// fetch coalesces provider calls for id and converts the outcome into a result
// for this caller. existing is the persisted row, possibly nil. A resolving
// fetch first rechecks the cache tier, since a flight that finished between
// this caller's cache miss and now has already stored the entity.
func (m *Manager[T]) fetch(ctx context.Context, id model.RemoteIdentity, existing T, resolving bool) (model.CacheResult[T], error) {
	ch := m.flights.doChan(id.Hash(), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.FetchTimeout)
		defer cancel()

		if resolving {
			if entity, ok := m.fromCache(fctx, id); ok {
				return fetchOutcome[T]{entity: entity, cached: true}, nil
			}
		}

		out := m.fetchAndStore(fctx, id, existing)
		if out.fetchErr != nil && resolving && !model.IsNil(existing) {
			m.enqueueRefresh(fctx, id)
		}
		return out, nil
	})

	var out fetchOutcome[T]
	select {
	case <-ctx.Done():
		// The fetch keeps running for the other waiters.
		return m.failed(id, ctx.Err()), ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
		} else {
			metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
		}
		out = res.Val.(fetchOutcome[T])
	}

	switch {
	case out.storeErr != nil:
		return m.failed(id, out.storeErr), out.storeErr

	case out.cached:
		return m.record(hitResult(id, out.entity, nil)), nil

	case out.fetchErr == nil:
		return m.record(model.CacheResult[T]{
			Status:   model.StatusRefreshed,
			Identity: id,
			Entity:   out.entity,
			Common:   out.entity.Meta(),
		}), nil

	case !model.IsNil(existing):
		slog.Warn("provider fetch failed, serving stale data",
			"kind", m.kind.String(),
			"url", id.URL(),
			"hash", id.Hash(),
			"error", out.fetchErr,
		)
		return m.record(hitResult(id, existing, out.fetchErr)), nil

	case errors.Is(out.fetchErr, repository.ErrNotFound):
		return m.record(model.CacheResult[T]{Status: model.StatusMiss, Identity: id, Err: out.fetchErr}), nil

	default:
		return m.record(model.CacheResult[T]{Status: model.StatusError, Identity: id, Err: out.fetchErr}), nil
	}
}

// fetchAndStore calls the provider and writes a successful result through to
// the persisted store and the cache tier.
func (m *Manager[T]) fetchAndStore(ctx context.Context, id model.RemoteIdentity, existing T) fetchOutcome[T] {
	label := m.kind.String()

	start := time.Now()
	fresh, err := m.provider.Fetch(ctx, id)
	metrics.ProviderFetchDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if err == nil {
		err = m.adopt(id, fresh, existing)
	}
	if err != nil {
		metrics.ProviderFetchesTotal.WithLabelValues(label, providerResult(err)).Inc()
		return fetchOutcome[T]{fetchErr: err}
	}
	metrics.ProviderFetchesTotal.WithLabelValues(label, metrics.ProviderSuccess).Inc()

	if err := m.store.Upsert(ctx, fresh); err != nil {
		slog.Error("failed to persist fetched entity",
			"kind", label,
			"hash", id.Hash(),
			"error", err,
		)
		if !errors.Is(err, repository.ErrStorage) {
			err = repository.StorageError("upsert", err)
		}
		return fetchOutcome[T]{storeErr: err}
	}

	m.toCache(ctx, fresh)
	return fetchOutcome[T]{entity: fresh}
}

// adopt stamps the bookkeeping fields of a freshly fetched entity. The entity
// is keyed by the requested hash while keeping the canonical identity the
// provider reported, so later lookups by the requested identity still hit.
func (m *Manager[T]) adopt(id model.RemoteIdentity, fresh, existing T) error {
	if model.IsNil(fresh) {
		return &repository.ProviderError{Kind: m.kind, URL: id.URL(), Err: errors.New("provider returned no entity")}
	}

	meta := fresh.Meta()
	if meta.Identity.IsZero() {
		meta.Identity = id
	}
	if _, err := model.ResolveIdentity(fresh); err != nil {
		return &repository.ProviderError{Kind: m.kind, URL: id.URL(), Err: err}
	}

	meta.Hash = id.Hash()
	if !model.IsNil(existing) && !existing.Meta().CreatedAt.IsZero() {
		meta.CreatedAt = existing.Meta().CreatedAt
	}
	meta.MarkSynced(m.now())
	return nil
}

func (m *Manager[T]) enqueueRefresh(ctx context.Context, id model.RemoteIdentity) {
	if m.queue == nil {
		return
	}

	qctx, cancel := context.WithTimeout(ctx, m.cfg.EnqueueTimeout)
	defer cancel()

	if err := m.queue.PublishRefreshTask(qctx, repository.NewRefreshTask(id)); err != nil {
		metrics.RefreshTasksTotal.WithLabelValues(metrics.RefreshPublishError).Inc()
		slog.Warn("failed to enqueue refresh task",
			"kind", m.kind.String(),
			"url", id.URL(),
			"error", err,
		)
		return
	}
	metrics.RefreshTasksTotal.WithLabelValues(metrics.RefreshPublished).Inc()
}

func (m *Manager[T]) fromCache(ctx context.Context, id model.RemoteIdentity) (T, bool) {
	entity, ok, err := m.cache.Get(ctx, id.Hash())
	if err != nil {
		// Log cache error but continue to the store
		slog.Warn("cache get failed, falling back to store",
			"kind", m.kind.String(),
			"hash", id.Hash(),
			"error", err,
		)
		var zero T
		return zero, false
	}
	if !ok || model.IsNil(entity) {
		var zero T
		return zero, false
	}
	return entity, true
}

func (m *Manager[T]) toCache(ctx context.Context, entity T) {
	if err := m.cache.Set(ctx, entity); err != nil {
		slog.Warn("failed to cache entity",
			"kind", m.kind.String(),
			"hash", entity.Meta().Hash,
			"error", err,
		)
	}
}

func (m *Manager[T]) checkIdentity(id model.RemoteIdentity) error {
	if id.IsZero() {
		return fmt.Errorf("%w: empty identity", model.ErrInvalidURL)
	}
	if id.Kind() != m.kind {
		return fmt.Errorf("%w: %s identity passed to %s manager", model.ErrUnsupportedEntityType, id.Kind(), m.kind)
	}
	return nil
}

func (m *Manager[T]) failed(id model.RemoteIdentity, err error) model.CacheResult[T] {
	return m.record(model.CacheResult[T]{Status: model.StatusError, Identity: id, Err: err})
}

func (m *Manager[T]) record(r model.CacheResult[T]) model.CacheResult[T] {
	status := r.Status.String()
	if r.Degraded() {
		status = metrics.LookupDegraded
	}
	metrics.CacheLookupsTotal.WithLabelValues(m.kind.String(), status).Inc()
	return r
}

func hitResult[T model.Entity](id model.RemoteIdentity, entity T, err error) model.CacheResult[T] {
	return model.CacheResult[T]{
		Status:   model.StatusHit,
		Identity: id,
		Entity:   entity,
		Common:   entity.Meta(),
		Err:      err,
	}
}

func providerResult(err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return metrics.ProviderNotFound
	case errors.Is(err, repository.ErrProviderUnavailable):
		return metrics.ProviderRejected
	default:
		return metrics.ProviderError
	}
}

const flightShards = 32

// flightGroup spreads in-flight fetches over several singleflight groups so
// unrelated identities do not contend on one mutex.
type flightGroup struct {
	shards [flightShards]singleflight.Group
}

func (g *flightGroup) doChan(hash uint64, fn func() (any, error)) <-chan singleflight.Result {
	return g.shards[hash%flightShards].DoChan(strconv.FormatUint(hash, 16), fn)
}
