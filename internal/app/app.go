// Package app wires configuration into providers, catalogs and recorders for
// the quill commands.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/klejdi94/quill/analytics"
	"github.com/klejdi94/quill/config"
	"github.com/klejdi94/quill/executor"
	"github.com/klejdi94/quill/flows"
	"github.com/klejdi94/quill/middleware"
	"github.com/klejdi94/quill/provider"
	"github.com/klejdi94/quill/registry"
	"github.com/klejdi94/quill/registry/s3blob"
)

// Closers collects cleanup functions for opened connections.
type Closers []func() error

// Close runs every cleanup in reverse order and joins their errors.
func (c *Closers) Close() error {
	var errs []error
	for i := len(*c) - 1; i >= 0; i-- {
		if err := (*c)[i](); err != nil {
			errs = append(errs, err)
		}
	}
	*c = nil
	return errors.Join(errs...)
}

func (c *Closers) add(fn func() error) { *c = append(*c, fn) }

// Provider builds the configured provider wrapped in the configured middlewares.
// reg may be nil when metrics are not exported.
func Provider(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer, closers *Closers) (provider.Provider, error) {
	p, err := provider.FromConfig(ctx, cfg.Provider)
	if err != nil {
		return nil, err
	}
	mw := cfg.Middleware
	var chain []middleware.Middleware
	if mw.LogCalls {
		chain = append(chain, middleware.Logging(logger))
	}
	if mw.Metrics && reg != nil {
		chain = append(chain, middleware.NewMetrics(reg).Middleware())
	}
	if mw.CacheTTL > 0 {
		var cache middleware.Cache = middleware.NewInMemoryCache()
		if mw.CacheRedis != "" {
			rdb := redis.NewClient(&redis.Options{Addr: mw.CacheRedis})
			closers.add(rdb.Close)
			cache = middleware.NewRedisCache(rdb, "")
		}
		chain = append(chain, middleware.CacheMiddleware(cache, mw.CacheTTL))
	}
	chain = append(chain,
		middleware.RateLimit(mw.RateLimit, mw.RateWindow),
		middleware.CircuitBreaker(mw.CircuitThreshold, mw.CircuitTimeout),
		middleware.Retry(mw.Retries, middleware.ExponentialBackoff(500*time.Millisecond, 10*time.Second), logger),
	)
	return middleware.Chain(p, chain...), nil
}

// Executor builds an executor over catalog and p. The configured provider
// temperature and max tokens become call defaults that per-run options
// override; recorder may be nil.
func Executor(catalog executor.Catalog, p provider.Provider, cfg *config.Config, logger *zap.Logger, recorder analytics.Recorder) *executor.Executor {
	var defaults []executor.RunOption
	if cfg.Provider.Temperature > 0 {
		defaults = append(defaults, executor.WithTemperature(cfg.Provider.Temperature))
	}
	if cfg.Provider.MaxTokens > 0 {
		defaults = append(defaults, executor.WithMaxTokens(cfg.Provider.MaxTokens))
	}
	return executor.New(catalog, p,
		executor.WithLogger(logger),
		executor.WithTimeout(cfg.Executor.Timeout),
		executor.WithRecorder(recorder),
		executor.WithDefaults(defaults...),
	)
}

// Stores opens every catalog store named in the configuration, in the order
// file, redis, postgres, s3.
func Stores(ctx context.Context, cfg config.CatalogConfig, closers *Closers) ([]registry.Store, error) {
	var stores []registry.Store
	if cfg.Dir != "" {
		fs, err := registry.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		stores = append(stores, fs)
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		closers.add(rdb.Close)
		stores = append(stores, registry.NewRedisStore(rdb, cfg.Redis.Prefix))
	}
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("catalog postgres: %w", err)
		}
		closers.add(db.Close)
		pg, err := registry.NewPostgresStore(ctx, db, cfg.Postgres.Table, true)
		if err != nil {
			return nil, err
		}
		stores = append(stores, pg)
	}
	if cfg.S3.Bucket != "" {
		blobs, err := s3blob.NewFromConfig(ctx, s3blob.Options{
			Bucket:   cfg.S3.Bucket,
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		stores = append(stores, registry.NewS3Store(blobs, cfg.S3.Prefix))
	}
	return stores, nil
}

// Catalog loads the built-in flows (unless disabled) and every configured store.
func Catalog(ctx context.Context, cfg config.CatalogConfig, logger *zap.Logger, closers *Closers) (*registry.Catalog, error) {
	stores, err := Stores(ctx, cfg, closers)
	if err != nil {
		return nil, err
	}
	var sources []registry.Source
	if !cfg.DisableBuiltin {
		sources = append(sources, flows.Source())
	}
	for _, s := range stores {
		sources = append(sources, s)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("catalog: no flow sources configured")
	}
	c, err := registry.Load(ctx, sources...)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	logger.Info("catalog loaded", zap.Int("flows", c.Len()), zap.Int("stores", len(stores)))
	return c, nil
}

// Recorder opens the configured analytics recorder; nil when analytics are off.
func Recorder(ctx context.Context, cfg config.AnalyticsConfig, closers *Closers) (analytics.Recorder, error) {
	switch cfg.Store {
	case "":
		return nil, nil
	case "http":
		return analytics.NewHTTPRecorder(cfg.URL, nil), nil
	}
	return AnalyticsStore(ctx, cfg, closers)
}

// AnalyticsStore opens a queryable store. The http recorder is not one.
func AnalyticsStore(ctx context.Context, cfg config.AnalyticsConfig, closers *Closers) (analytics.Store, error) {
	switch cfg.Store {
	case "", "memory":
		return analytics.NewMemoryStore(cfg.MaxRecords), nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("analytics postgres: %w", err)
		}
		closers.add(db.Close)
		pg, err := analytics.NewPostgresStore(ctx, db, cfg.Table)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis})
		closers.add(rdb.Close)
		return analytics.NewRedisStore(rdb, cfg.RedisKey, analytics.WithMaxRecords(cfg.MaxRecords)), nil
	default:
		return nil, fmt.Errorf("analytics: unknown store %q", cfg.Store)
	}
}
