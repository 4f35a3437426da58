// Package search runs cache-first flight searches and week-range
// aggregations on top of the client, cache, storage and inbound packages.
package search

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/flight-search-cache/pkg/cache"
	"github.com/Sternrassler/flight-search-cache/pkg/client"
	"github.com/Sternrassler/flight-search-cache/pkg/flight"
	"github.com/Sternrassler/flight-search-cache/pkg/inbound"
	"github.com/Sternrassler/flight-search-cache/pkg/storage"
)

// DefaultMaxCacheAge is used when neither Options nor Config set one.
const DefaultMaxCacheAge = 24 * time.Hour

// Fetcher validates and fetches searches. *client.Client implements it.
type Fetcher interface {
	Validate(params flight.SearchParameters) error
	Fetch(ctx context.Context, params flight.SearchParameters) (*client.FetchResult, error)
}

// Cache serves stored searches. *cache.Store implements it.
type Cache interface {
	Lookup(ctx context.Context, params flight.SearchParameters, maxAge time.Duration) cache.LookupResult
	PruneIfDue(ctx context.Context, maxAge time.Duration) (cache.PruneReport, bool, error)
}

// Writer persists fetched searches. *storage.Writer implements it.
type Writer interface {
	Store(ctx context.Context, searchID string, params flight.SearchParameters, resp *flight.Response, rawID *int64) (storage.StoreReport, error)
}

// InboundRepairer fills missing return legs. *inbound.Strategy implements it.
type InboundRepairer interface {
	EnsureInbound(ctx context.Context, resp *flight.Response, params flight.SearchParameters) (*flight.Response, inbound.Outcome)
}

// Config wires an Orchestrator. Client is required; a nil Cache, Writer or
// Inbound disables that stage.
type Config struct {
	Client  Fetcher
	Cache   Cache
	Writer  Writer
	Inbound InboundRepairer

	// MaxCacheAge is the default freshness window.
	// Default: 24 hours
	MaxCacheAge time.Duration

	// DefaultReturnOffsetDays turns one-way requests into round trips
	// returning this many days after the outbound date. 0 disables it.
	DefaultReturnOffsetDays int

	Logger *zerolog.Logger
	Now    func() time.Time
}

// Options tune a single SearchFlights call.
type Options struct {
	// ForceAPI skips the cache lookup.
	ForceAPI bool
	// MaxCacheAge overrides Config.MaxCacheAge when > 0.
	MaxCacheAge time.Duration
}

// Orchestrator is the entry point for searches.
type Orchestrator struct {
	config Config
	week   *WeekAggregator
	logger zerolog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.MaxCacheAge <= 0 {
		cfg.MaxCacheAge = DefaultMaxCacheAge
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Orchestrator{
		config: cfg,
		week:   NewWeekAggregator(&logger),
		logger: logger.With().Str("component", "orchestrator").Logger(),
	}
}

// SearchFlights serves params from the cache when a fresh snapshot exists
// and from the API otherwise. Fetched responses of round trips are checked
// for a return leg, then stored. Failures are reported in Result.Error;
// storage and inbound problems never fail a search that returned data.
func (o *Orchestrator) SearchFlights(ctx context.Context, params flight.SearchParameters, opts Options) Result {
	maxAge := o.config.MaxCacheAge
	if opts.MaxCacheAge > 0 {
		maxAge = opts.MaxCacheAge
	}

	params = o.withReturnOffset(params.WithDefaults())
	logger := o.logger.With().Str("route", params.Route()).Str("outbound_date", params.OutboundDate).Logger()

	if o.config.Cache != nil {
		// Pruning follows the configured TTL; opts.MaxCacheAge only narrows
		// this caller's lookup. Errors are logged by the cache and must not
		// block the search.
		_, _, _ = o.config.Cache.PruneIfDue(ctx, o.config.MaxCacheAge)
	}

	if err := o.config.Client.Validate(params); err != nil {
		return failure(err)
	}

	if o.config.Cache != nil && !opts.ForceAPI {
		res := o.config.Cache.Lookup(ctx, params, maxAge)
		if res.Status == cache.StatusHit {
			age := res.Search.Age(o.config.Now())
			logger.Info().Str("search_id", res.Search.SearchID).Dur("age", age).Msg("Serving search from cache")
			return Result{
				Success:       true,
				Source:        SourceCache,
				SearchID:      res.Search.SearchID,
				Data:          res.Search.Response,
				CacheAgeHours: roundTo(age.Hours(), 2),
				Message:       "Data retrieved from local cache",
			}
		}
	}

	fetched, err := o.config.Client.Fetch(ctx, params)
	if err != nil {
		res := failure(err)
		logger.Warn().Str("error_kind", string(res.Error.Kind)).Err(err).Msg("Search failed")
		return res
	}

	result := Result{
		Success:  true,
		Source:   SourceAPI,
		SearchID: fetched.SearchID,
		Data:     fetched.Response,
		Message:  "Fresh data retrieved from API",
	}

	if o.config.Inbound != nil && params.IsRoundTrip() {
		data, outcome := o.config.Inbound.EnsureInbound(ctx, result.Data, params)
		result.Data = data
		result.Inbound = &outcome
	}

	if o.config.Writer != nil {
		report, err := o.config.Writer.Store(ctx, fetched.SearchID, params, result.Data, fetched.RawID)
		if err != nil {
			logger.Warn().Err(err).Str("search_id", fetched.SearchID).Msg("Structured storage failed, returning API data")
		} else {
			result.Storage = &report
		}
	}

	return result
}

// SearchWeekRange searches seven consecutive days from startDate.
func (o *Orchestrator) SearchWeekRange(ctx context.Context, departure, arrival, startDate string, params flight.SearchParameters) WeekResult {
	return o.week.RunWeek(ctx, o, departure, arrival, startDate, params)
}

func (o *Orchestrator) withReturnOffset(params flight.SearchParameters) flight.SearchParameters {
	if o.config.DefaultReturnOffsetDays <= 0 || params.ReturnDate != "" {
		return params
	}
	outbound, err := time.Parse(flight.DateLayout, params.OutboundDate)
	if err != nil {
		// Validation reports the bad date.
		return params
	}
	params.ReturnDate = outbound.AddDate(0, 0, o.config.DefaultReturnOffsetDays).Format(flight.DateLayout)
	o.logger.Debug().Str("return_date", params.ReturnDate).Msg("Generated default return date")
	return params
}
