// Package app assembles the data repository and its backing services from
// configuration. Both binaries share it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.etcd.io/bbolt"

	"github.com/hszk-dev/fronttube/internal/config"
	"github.com/hszk-dev/fronttube/internal/domain/model"
	"github.com/hszk-dev/fronttube/internal/domain/repository"
	"github.com/hszk-dev/fronttube/internal/infrastructure/bolt"
	"github.com/hszk-dev/fronttube/internal/infrastructure/cache"
	"github.com/hszk-dev/fronttube/internal/infrastructure/postgres"
	"github.com/hszk-dev/fronttube/internal/infrastructure/queue"
	"github.com/hszk-dev/fronttube/internal/infrastructure/sqlite"
	"github.com/hszk-dev/fronttube/internal/infrastructure/storage"
	"github.com/hszk-dev/fronttube/internal/provider"
	"github.com/hszk-dev/fronttube/internal/provider/image"
	"github.com/hszk-dev/fronttube/internal/provider/invidious"
	"github.com/hszk-dev/fronttube/internal/usecase"
)

// App holds the assembled repository and everything that must be closed
// on shutdown.
type App struct {
	Repo  *usecase.DataRepository
	Queue *queue.Client // nil unless RabbitMQ is enabled

	// Checks are the readiness probes of every connected backend.
	Checks map[string]func(ctx context.Context) error

	backends
	closers []func() error
}

type backends struct {
	cfg    *config.Config
	pg     *postgres.Client
	sqlDB  *sql.DB
	boltDB *bbolt.DB
	redis  *redis.Client
}

// Options toggles optional services per binary.
type Options struct {
	// RequireQueue fails New when RabbitMQ is disabled.
	RequireQueue bool
}

// New connects every configured backend and builds one manager per kind.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{
		Checks:   make(map[string]func(ctx context.Context) error),
		backends: backends{cfg: cfg},
	}
	repo, err := a.build(ctx, opts)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Repo = repo
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) (*usecase.DataRepository, error) {
	cfg := a.cfg

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if err := a.openCache(ctx); err != nil {
		return nil, err
	}

	var objects repository.ObjectStorage
	if cfg.MinIO.Enabled {
		client, err := storage.NewClient(ctx, storage.ClientConfig{
			Endpoint:     cfg.MinIO.Endpoint,
			AccessKey:    cfg.MinIO.AccessKey,
			SecretKey:    cfg.MinIO.SecretKey,
			Bucket:       cfg.MinIO.Bucket,
			UseSSL:       cfg.MinIO.UseSSL,
			CreateBucket: cfg.MinIO.CreateBucket,
			CacheControl: "public, max-age=86400",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MinIO: %w", err)
		}
		objects = client
		a.Checks["minio"] = client.Ping
		slog.Info("connected to MinIO", "bucket", client.Bucket())
	}

	var refreshQueue repository.RefreshQueue
	switch {
	case cfg.RabbitMQ.Enabled:
		qcfg := queue.DefaultClientConfig(cfg.RabbitMQ.URL())
		qcfg.QueueName, qcfg.RoutingKey = cfg.RabbitMQ.Queue, cfg.RabbitMQ.Queue
		client, err := queue.NewClient(ctx, qcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		a.Queue = client
		a.closers = append(a.closers, client.Close)
		refreshQueue = client
		slog.Info("connected to RabbitMQ", "queue", qcfg.QueueName)
	case opts.RequireQueue:
		return nil, errors.New("RabbitMQ must be enabled (RABBITMQ_ENABLED=true)")
	}

	icfg := invidious.DefaultClientConfig(cfg.Invidious.BaseURL)
	icfg.Timeout = cfg.Invidious.Timeout
	icfg.UserAgent = cfg.Invidious.UserAgent
	inv, err := invidious.NewClient(icfg)
	if err != nil {
		return nil, err
	}

	icf := image.DefaultProviderConfig()
	icf.UserAgent = cfg.Invidious.UserAgent
	images := image.NewProvider(objects, icf)

	mcfg := usecase.ManagerConfig{
		FetchTimeout:     cfg.Manager.FetchTimeout,
		FetchConcurrency: cfg.Manager.FetchConcurrency,
		EnqueueTimeout:   cfg.Manager.EnqueueTimeout,
	}
	policy := usecase.NewStalenessPolicy(cfg.Staleness.Thresholds())
	w := wiring{a: a, policy: policy, cfg: mcfg, queue: refreshQueue}

	videos, err := newManager(w, model.KindVideo, inv.Videos())
	if err != nil {
		return nil, err
	}
	channels, err := newManager(w, model.KindChannel, inv.Channels())
	if err != nil {
		return nil, err
	}
	imgs, err := newManager[*model.Image](w, model.KindImage, images)
	if err != nil {
		return nil, err
	}
	captions, err := newManager(w, model.KindCaption, inv.Captions())
	if err != nil {
		return nil, err
	}
	streams, err := newManager(w, model.KindStream, inv.Streams())
	if err != nil {
		return nil, err
	}

	return usecase.NewDataRepository(videos, channels, imgs, captions, streams), nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.cfg
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pcfg := postgres.DefaultClientConfig(cfg.Database.DSN())
		pcfg.MaxConns = cfg.Database.MaxConns
		client, err := postgres.NewClient(ctx, pcfg)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		a.pg = client
		a.closers = append(a.closers, func() error { client.Close(); return nil })
		a.Checks["postgres"] = client.Ping
		slog.Info("connected to PostgreSQL")
	case config.StoreSQLite:
		db, err := sqlite.Open(ctx, cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open SQLite store: %w", err)
		}
		a.sqlDB = db
		a.closers = append(a.closers, db.Close)
		a.Checks["sqlite"] = db.PingContext
		slog.Info("opened SQLite store", "path", cfg.Store.Path)
	case config.StoreBolt:
		db, err := bolt.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open bbolt store: %w", err)
		}
		a.boltDB = db
		a.closers = append(a.closers, db.Close)
		slog.Info("opened bbolt store", "path", cfg.Store.Path)
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return nil
}

func (a *App) openCache(ctx context.Context) error {
	if a.cfg.Cache.Backend != "redis" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr(),
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)
	a.Checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	slog.Info("connected to Redis", "addr", a.cfg.Redis.Addr())
	return nil
}

// Close releases every backend in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

type wiring struct {
	a      *App
	policy usecase.StalenessPolicy
	cfg    usecase.ManagerConfig
	queue  repository.RefreshQueue
}

func newManager[T model.Entity](w wiring, kind model.Kind, upstream repository.Provider[T]) (*usecase.Manager[T], error) {
	store, err := newStore[T](w.a.backends, kind)
	if err != nil {
		return nil, err
	}

	rcfg := provider.DefaultResilienceConfig(kind.String())
	rcfg.Rate = w.a.cfg.Invidious.Rate
	rcfg.Burst = w.a.cfg.Invidious.Burst

	return usecase.NewManager(kind, usecase.ManagerDeps[T]{
		Cache:    newCache[T](w.a.backends, kind),
		Store:    store,
		Provider: provider.NewResilient(kind, upstream, rcfg),
		Queue:    w.queue,
	}, w.policy, w.cfg), nil
}

func newStore[T model.Entity](b backends, kind model.Kind) (repository.EntityStore[T], error) {
	switch {
	case b.pg != nil:
		r, err := postgres.NewEntityRepository[T](b.pg.Pool(), kind)
		if err != nil {
			return nil, err
		}
		return r, nil
	case b.sqlDB != nil:
		r, err := sqlite.NewEntityRepository[T](b.sqlDB, kind)
		if err != nil {
			return nil, err
		}
		return r, nil
	case b.boltDB != nil:
		r, err := bolt.NewEntityRepository[T](b.boltDB, kind)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, errors.New("no persisted store opened")
	}
}

func newCache[T model.Entity](b backends, kind model.Kind) cache.EntityCache[T] {
	ttl := b.cfg.Cache.TTL(kind)
	if b.redis != nil {
		return cache.NewRedisEntityCache[T](b.redis, kind, ttl)
	}

	return cache.NewMemoryCache[T](kind, cache.MemoryConfig{
		Capacity: b.cfg.Cache.Capacity(kind),
		TTL:      ttl,
	})
}
