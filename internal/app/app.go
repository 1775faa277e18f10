// Package app builds the engine's runtime from configuration. The API server
// and the CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/audit"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/cache"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/config"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/generator"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/pipeline"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/retrieval"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/session"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/storage"
)

// App holds every long-lived component.
type App struct {
	Config    *config.Config
	Logger    *observability.Logger
	Corpus    *corpus.Store
	Router    *retrieval.Router
	Generator *generator.Generator
	Sessions  session.Store
	Audit     audit.Recorder
	Pipeline  *pipeline.Pipeline
	Watcher   *corpus.Watcher

	closers []func() error
}

// New loads the corpus and wires the pipeline. The corpus watcher is not
// started; see StartWatcher.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	loader := corpus.NewLoader(cfg.Corpus.Dir, logger, corpus.IndexOptions{FuzzyRatio: cfg.Retrieval.FuzzyRatio})
	a.Corpus = corpus.NewStore(loader, logger)
	if _, err := a.Corpus.Reload(ctx); err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}

	router, err := retrieval.NewRouter(logger, RouterConfig(cfg.Retrieval))
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}
	a.Router = router

	client, err := generator.NewClient(generator.ClientConfig{
		BaseURL:        cfg.Generator.BaseURL,
		APIKey:         cfg.Generator.APIKey,
		Model:          cfg.Generator.Model,
		Timeout:        cfg.Generator.Timeout,
		MaxRetries:     cfg.Generator.MaxRetries,
		RequestsPerSec: cfg.Generator.RequestsPerSec,
		Burst:          cfg.Generator.Burst,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create generator client: %w", err)
	}
	weather := generator.NewWeatherClient(generator.WeatherConfig{
		BaseURL: cfg.Weather.BaseURL,
		APIKey:  cfg.Weather.APIKey,
		Timeout: cfg.Weather.Timeout,
	})
	a.Generator = generator.New(client, generator.NewToolbox(weather, logger), generator.Config{
		Model:           cfg.Generator.Model,
		Timeout:         cfg.Generator.Timeout,
		ClassifyTimeout: cfg.Generator.ClassifyTimeout,
	}, logger)

	kv, err := a.openCache(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Sessions = session.NewCacheStore(kv, logger, session.StoreConfig{TTL: cfg.Sessions.TTL})
	a.Generator.SetClassifyCache(generator.NewClassifyCache(kv, logger, generator.ClassifyCacheConfig{
		TTL: cfg.Generator.ClassifyCacheTTL,
	}))

	rec, err := audit.New(ctx, AuditConfig(cfg), logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	a.Audit = rec
	a.closers = append(a.closers, rec.Close)

	a.Pipeline, err = pipeline.New(pipeline.Deps{
		Corpus:    a.Corpus,
		Router:    a.Router,
		Generator: a.Generator,
		Sessions:  a.Sessions,
		Audit:     a.Audit,
		Logger:    logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// openCache connects the key-value backend shared by sessions and the
// classification cache.
func (a *App) openCache(ctx context.Context) (cache.Client, error) {
	var client cache.Client
	switch a.Config.Sessions.Driver {
	case "redis":
		rc := a.Config.Sessions.Redis
		redisClient, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
			PoolSize: rc.PoolSize,
			Prefix:   rc.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connect session redis: %w", err)
		}
		client = redisClient
	default:
		client = cache.NewMemoryClient(time.Minute)
	}
	a.closers = append(a.closers, client.Close)
	return client, nil
}

// StartWatcher reloads the corpus on file changes until Close.
func (a *App) StartWatcher(ctx context.Context) error {
	w, err := corpus.NewWatcher(a.Config.Corpus.Dir, a.Corpus, a.Config.Corpus.WatchDebounce, a.Logger)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	a.Watcher = w
	a.closers = append(a.closers, w.Stop)
	return nil
}

// Close releases resources in reverse order of creation.
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

// RouterConfig maps the retrieval section onto the router settings.
func RouterConfig(r config.RetrievalConfig) retrieval.RouterConfig {
	assembler := retrieval.DefaultAssemblerConfig()
	assembler.MaxChunks = r.MaxChunks
	assembler.TokenBudget = r.TokenBudget
	assembler.LowConfidenceThreshold = r.LowConfidenceThreshold
	assembler.FactMultiplier = r.FactMultiplier
	assembler.VehicleFilterMinimum = r.VehicleFilterMinimum
	assembler.ForceAddFloor = r.Boosts.ForceAddFloor

	return retrieval.RouterConfig{
		Search: retrieval.SearchConfig{
			TopN:               r.TopN,
			MinWorkingSet:      r.MinWorkingSet,
			MaxExpansionLength: r.MaxExpansionLength,
			AreaBoost:          r.Boosts.Area,
			CityBoost:          r.Boosts.City,
			VehicleBoost:       r.Boosts.Vehicle,
			PerfectMatchBoost:  r.Boosts.PerfectMatch,
		},
		Assembler: assembler,
		RuleOrder: r.RuleOrder,
	}
}

// AuditConfig maps the audit section onto the storage settings.
func AuditConfig(cfg *config.Config) storage.Config {
	out := storage.Config{Driver: cfg.Audit.Driver, DSN: cfg.AuditDSN()}
	switch cfg.Audit.Driver {
	case storage.DriverSQLite:
		out.MaxOpenConns = cfg.Audit.SQLite.MaxOpenConns
		out.JournalMode = cfg.Audit.SQLite.JournalMode
	case storage.DriverPostgres:
		out.MaxOpenConns = cfg.Audit.Postgres.MaxOpenConns
		out.MaxIdleConns = cfg.Audit.Postgres.MaxIdleConns
		out.ConnMaxLifetime = cfg.Audit.Postgres.ConnMaxLifetime
	}
	return out
}
