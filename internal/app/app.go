// Package app wires configuration into the flight search components.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/flight-search-cache/pkg/cache"
	"github.com/Sternrassler/flight-search-cache/pkg/client"
	"github.com/Sternrassler/flight-search-cache/pkg/config"
	"github.com/Sternrassler/flight-search-cache/pkg/inbound"
	"github.com/Sternrassler/flight-search-cache/pkg/logging"
	"github.com/Sternrassler/flight-search-cache/pkg/metrics"
	"github.com/Sternrassler/flight-search-cache/pkg/ratelimit"
	"github.com/Sternrassler/flight-search-cache/pkg/search"
	"github.com/Sternrassler/flight-search-cache/pkg/storage"
)

// ErrNoAPIKey is returned by RequireSearch when no API key is configured.
var ErrNoAPIKey = errors.New("SERPAPI_KEY is required for searches")

// App holds the wired components. Client, Inbound and Search are nil when
// no API key is configured; storage and cache commands still work.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	DB      *sql.DB
	Redis   *redis.Client
	Limiter ratelimit.Limiter

	Raw     *storage.RawStore
	Writer  *storage.Writer
	Cache   *cache.Store
	Client  *client.Client
	Inbound *inbound.Strategy
	Search  *search.Orchestrator
}

// New opens storage and builds every component from cfg.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	db, err := storage.Open(ctx, cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	a.DB = db

	if err := a.setupLimiter(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Raw = storage.NewRawStore(db)
	writerLogger := logging.Component(logger, "storage")
	a.Writer = storage.NewWriter(db, storage.WriterConfig{
		AutoCreateAirports: cfg.Storage.AutoCreateAirports,
		Metrics:            a.Metrics,
		Logger:             &writerLogger,
	})
	a.Cache = cache.NewStore(db, cache.Config{
		PruneInterval: cfg.Cache.PruneInterval.Duration,
		Metrics:       a.Metrics,
		Logger:        &logger,
	})

	if cfg.API.Key == "" {
		logger.Warn().Msg("No API key configured, searches are disabled")
		return a, nil
	}

	ccfg := client.DefaultConfig(cfg.API.Key)
	ccfg.BaseURL = cfg.API.BaseURL
	ccfg.Engine = cfg.API.Engine
	ccfg.Timeout = cfg.API.Timeout.Duration
	ccfg.Retry.MaxRetries = cfg.API.MaxRetries
	ccfg.Retry.BaseDelay = cfg.API.RetryDelay.Duration
	ccfg.Validation.EnforceHorizon = cfg.Search.ValidateDateHorizon
	ccfg.Validation.MaxDaysAhead = cfg.Search.MaxDaysAhead
	ccfg.Validation.MaxPassengers = cfg.Search.MaxPassengers
	ccfg.Limiter = a.Limiter
	ccfg.RawSink = a.Raw
	ccfg.Metrics = a.Metrics
	ccfg.Logger = &logger

	c, err := client.New(ccfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating search client: %w", err)
	}
	a.Client = c
	a.Inbound = inbound.New(c, a.Metrics, &logger)
	a.Search = search.NewOrchestrator(search.Config{
		Client:                  c,
		Cache:                   a.Cache,
		Writer:                  a.Writer,
		Inbound:                 a.Inbound,
		MaxCacheAge:             cfg.Cache.TTL(),
		DefaultReturnOffsetDays: cfg.Search.DefaultReturnOffsetDays,
		Logger:                  &logger,
	})
	return a, nil
}

func (a *App) setupLimiter(ctx context.Context) error {
	rl := a.Config.RateLimit
	if !rl.Enabled {
		return nil
	}
	limits := ratelimit.Config{PerMinute: rl.PerMinute, PerHour: rl.PerHour}

	if rl.RedisURL == "" {
		w, err := ratelimit.NewWindow(limits)
		if err != nil {
			return fmt.Errorf("creating rate limiter: %w", err)
		}
		a.Limiter = w
		return nil
	}

	opts, err := redis.ParseURL(rl.RedisURL)
	if err != nil {
		return fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	a.Redis = redis.NewClient(opts)
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}

	w, err := ratelimit.NewRedisWindow(a.Redis, limits, rl.RedisKey, logging.Component(a.Logger, "ratelimit"))
	if err != nil {
		return fmt.Errorf("creating redis rate limiter: %w", err)
	}
	a.Limiter = w
	a.Logger.Info().Str("addr", opts.Addr).Msg("Using shared Redis rate limiter")
	return nil
}

// RequireSearch returns the orchestrator or ErrNoAPIKey.
func (a *App) RequireSearch() (*search.Orchestrator, error) {
	if a.Search == nil {
		return nil, ErrNoAPIKey
	}
	return a.Search, nil
}

// PruneSummary reports a full prune run.
type PruneSummary struct {
	Searches  cache.PruneReport
	RawPruned int64
}

// Prune removes expired searches and, when raw retention is configured,
// raw responses older than the retention period.
func (a *App) Prune(ctx context.Context) (PruneSummary, error) {
	var s PruneSummary
	report, err := a.Cache.PruneExpired(ctx, a.Config.Cache.TTL())
	if err != nil {
		return s, err
	}
	s.Searches = report

	n, err := a.Raw.PruneOlderThan(ctx, a.Config.Storage.RawRetentionDays)
	if err != nil {
		return s, err
	}
	s.RawPruned = n
	return s, nil
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
