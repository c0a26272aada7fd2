// Package app assembles the generation stack from configuration. The API
// server and studioctl both build on it.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kiranshivaraju/catalogstudio/internal/analytics"
	"github.com/kiranshivaraju/catalogstudio/internal/artifacts"
	"github.com/kiranshivaraju/catalogstudio/internal/cache"
	"github.com/kiranshivaraju/catalogstudio/internal/config"
	"github.com/kiranshivaraju/catalogstudio/internal/generation"
	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/kiranshivaraju/catalogstudio/internal/media"
	"github.com/kiranshivaraju/catalogstudio/internal/store"
)

// App owns every long-lived dependency. Close releases them in reverse
// order of construction.
type App struct {
	Config    *config.Config
	Log       *logger.Logger
	Pool      *pgxpool.Pool
	Store     *store.PostgresStore
	Cache     *cache.RedisCache
	Artifacts artifacts.Store
	Service   *generation.Service

	closers []func() error
}

// New connects to Postgres and Redis, selects the artifact backend and the
// media provider, and wires the generation service on top.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	pool, err := store.Connect(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	a.Store = store.NewPostgresStore(pool)
	log.Info("database connected")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("create redis cache: %w", err)
	}
	a.Cache = redisCache
	a.closers = append(a.closers, redisCache.Close)
	if err := redisCache.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Info("redis connected")

	objects, err := newArtifactStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.Artifacts = objects
	if c, isCloser := objects.(interface{ Close() error }); isCloser {
		a.closers = append(a.closers, c.Close)
	}
	log.Info("artifact store ready", "backend", cfg.Storage.Backend)

	materializer, err := artifacts.NewMaterializer(cfg.Storage.ScratchDir, log,
		artifacts.WithObjectStore(objects),
		artifacts.WithMaxBytes(cfg.Storage.ReferenceMaxBytes),
	)
	if err != nil {
		return nil, err
	}

	generator, err := media.NewGenerator(ctx, cfg.Media, log)
	if err != nil {
		return nil, fmt.Errorf("create media generator: %w", err)
	}
	log.Info("media generator initialized", "provider", generator.Name())

	sink := analytics.NewPostgresSink(pool)

	executor := generation.NewExecutor(generation.ExecutorDeps{
		Store:     a.Store,
		Resolver:  generation.NewResolver(a.Store, materializer, log),
		Versions:  generation.NewVersionAllocator(a.Store, cfg.Generation.VersionMaxAttempts, log),
		Generator: generator,
		Artifacts: objects,
		Sink:      sink,
		Timeout:   cfg.Media.Timeout,
		Logger:    log,
	})
	orchestrator := generation.NewOrchestrator(a.Store, redisCache, executor, sink,
		generation.OrchestratorConfig{Concurrency: cfg.Generation.Concurrency}, log)
	a.Service = generation.NewService(a.Store, redisCache, orchestrator, executor, log)

	ok = true
	return a, nil
}

func newArtifactStore(ctx context.Context, cfg config.StorageConfig) (artifacts.Store, error) {
	switch cfg.Backend {
	case "gcs":
		s, err := artifacts.NewGCSStore(ctx, cfg.GCSBucket, artifacts.ClientOptionsFromEnv()...)
		if err != nil {
			return nil, fmt.Errorf("create gcs store: %w", err)
		}
		return s, nil
	default:
		s, err := artifacts.NewFileStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("create file store: %w", err)
		}
		return s, nil
	}
}

// Close releases resources. Callers wait for in-flight jobs first.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
