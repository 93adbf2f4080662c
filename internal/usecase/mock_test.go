package usecase

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hszk-dev/fronttube/internal/domain/model"
	"github.com/hszk-dev/fronttube/internal/domain/repository"
)

// mockStore provides a configurable, map-backed mock for EntityStore.
type mockStore[T model.Entity] struct {
	mu   sync.RWMutex
	data map[uint64]T

	findByHashFn     func(ctx context.Context, hash uint64) (T, error)
	findManyByHashFn func(ctx context.Context, hashes []uint64) ([]T, error)
	upsertFn         func(ctx context.Context, entity T) error
	deleteFn         func(ctx context.Context, hash uint64) error

	findCount     atomic.Int32
	findManyCount atomic.Int32
	upsertCount   atomic.Int32
	deleteCount   atomic.Int32
}

func newMockStore[T model.Entity]() *mockStore[T] {
	return &mockStore[T]{data: make(map[uint64]T)}
}

func (m *mockStore[T]) put(entity T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[entity.Meta().Hash] = entity
}

func (m *mockStore[T]) get(hash uint64) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[hash]
	return e, ok
}

func (m *mockStore[T]) FindByHash(ctx context.Context, hash uint64) (T, error) {
	m.findCount.Add(1)
	if m.findByHashFn != nil {
		return m.findByHashFn(ctx, hash)
	}
	if e, ok := m.get(hash); ok {
		return e, nil
	}
	var zero T
	return zero, repository.ErrNotFound
}

func (m *mockStore[T]) FindManyByHash(ctx context.Context, hashes []uint64) ([]T, error) {
	m.findManyCount.Add(1)
	if m.findManyByHashFn != nil {
		return m.findManyByHashFn(ctx, hashes)
	}
	out := make([]T, len(hashes))
	for i, h := range hashes {
		if e, ok := m.get(h); ok {
			out[i] = e
		}
	}
	return out, nil
}

func (m *mockStore[T]) Upsert(ctx context.Context, entity T) error {
	m.upsertCount.Add(1)
	if m.upsertFn != nil {
		return m.upsertFn(ctx, entity)
	}
	m.put(entity)
	return nil
}

func (m *mockStore[T]) Delete(ctx context.Context, hash uint64) error {
	m.deleteCount.Add(1)
	if m.deleteFn != nil {
		return m.deleteFn(ctx, hash)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, hash)
	return nil
}

// mockCache is a map-backed mock for EntityCache.
type mockCache[T model.Entity] struct {
	mu    sync.RWMutex
	data  map[uint64]T
	getFn func(ctx context.Context, hash uint64) (T, bool, error)
	setFn func(ctx context.Context, entity T) error

	getCount atomic.Int32
	setCount atomic.Int32
}

func newMockCache[T model.Entity]() *mockCache[T] {
	return &mockCache[T]{data: make(map[uint64]T)}
}

func (m *mockCache[T]) Get(ctx context.Context, hash uint64) (T, bool, error) {
	m.getCount.Add(1)
	if m.getFn != nil {
		return m.getFn(ctx, hash)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[hash]
	return e, ok, nil
}

func (m *mockCache[T]) Set(ctx context.Context, entity T) error {
	m.setCount.Add(1)
	if m.setFn != nil {
		return m.setFn(ctx, entity)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[entity.Meta().Hash] = entity
	return nil
}

func (m *mockCache[T]) Delete(_ context.Context, hash uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, hash)
	return nil
}

func (m *mockCache[T]) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[uint64]T)
	return nil
}

func (m *mockCache[T]) has(hash uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[hash]
	return ok
}

// mockProvider provides a configurable mock for Provider.
type mockProvider[T model.Entity] struct {
	fetchFn    func(ctx context.Context, id model.RemoteIdentity) (T, error)
	fetchCount atomic.Int32
}

func (m *mockProvider[T]) Fetch(ctx context.Context, id model.RemoteIdentity) (T, error) {
	m.fetchCount.Add(1)
	if m.fetchFn != nil {
		return m.fetchFn(ctx, id)
	}
	var zero T
	return zero, repository.ErrNotFound
}

// mockRefreshQueue provides a configurable mock for RefreshQueue.
type mockRefreshQueue struct {
	mu        sync.Mutex
	published []repository.RefreshTask

	publishRefreshTaskFn  func(ctx context.Context, task repository.RefreshTask) error
	consumeRefreshTasksFn func(ctx context.Context, handler func(task repository.RefreshTask) error) error
}

func (m *mockRefreshQueue) PublishRefreshTask(ctx context.Context, task repository.RefreshTask) error {
	if m.publishRefreshTaskFn != nil {
		return m.publishRefreshTaskFn(ctx, task)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, task)
	return nil
}

func (m *mockRefreshQueue) ConsumeRefreshTasks(ctx context.Context, handler func(task repository.RefreshTask) error) error {
	if m.consumeRefreshTasksFn != nil {
		return m.consumeRefreshTasksFn(ctx, handler)
	}
	return nil
}

func (m *mockRefreshQueue) Close() error {
	return nil
}

func (m *mockRefreshQueue) tasks() []repository.RefreshTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]repository.RefreshTask(nil), m.published...)
}

// mockRefresher provides a configurable mock for Refresher.
type mockRefresher struct {
	refreshFn    func(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error)
	refreshCount atomic.Int32
}

func (m *mockRefresher) Refresh(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error) {
	m.refreshCount.Add(1)
	if m.refreshFn != nil {
		return m.refreshFn(ctx, id)
	}
	return model.CacheResult[model.Entity]{Status: model.StatusRefreshed, Identity: id}, nil
}
