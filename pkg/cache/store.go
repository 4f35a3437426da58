package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/flight-search-cache/pkg/flight"
	"github.com/Sternrassler/flight-search-cache/pkg/metrics"
)

// ErrCacheMiss indicates no fresh snapshot exists for a key.
var ErrCacheMiss = errors.New("cache miss")

// Status is the outcome of a Lookup.
type Status int

const (
	StatusMiss Status = iota
	StatusHit
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusError:
		return "error"
	default:
		return "miss"
	}
}

// LookupResult is returned by Lookup. Search is set only for StatusHit,
// Err only for StatusError.
type LookupResult struct {
	Status Status
	Key    string
	Search *flight.CachedSearch
	Err    error
}

// Config configures a Store.
type Config struct {
	// PruneInterval is the minimum time between PruneIfDue runs.
	// Default: 15 minutes
	PruneInterval time.Duration

	Metrics *metrics.Metrics
	Logger  *zerolog.Logger
	Now     func() time.Time
}

// Store reads and prunes cached searches.
type Store struct {
	db     *sql.DB
	config Config
	logger zerolog.Logger

	mu        sync.Mutex
	lastPrune time.Time
}

// NewStore creates a cache store on a database opened by storage.Open.
func NewStore(db *sql.DB, cfg Config) *Store {
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = 15 * time.Minute
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Store{
		db:     db,
		config: cfg,
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

// Lookup returns the newest snapshot for params created within maxAge.
func (s *Store) Lookup(ctx context.Context, params flight.SearchParameters, maxAge time.Duration) LookupResult {
	key := GenerateKey(params.WithDefaults())
	result := LookupResult{Key: key}

	search, err := s.Get(ctx, key, maxAge)
	switch {
	case err == nil:
		s.config.Metrics.CacheHits.Inc()
		result.Status = StatusHit
		result.Search = search
		s.logger.Debug().
			Str("cache_key", key).
			Str("search_id", search.SearchID).
			Dur("age", search.Age(s.config.Now())).
			Msg("Cache hit")
	case errors.Is(err, ErrCacheMiss):
		s.config.Metrics.CacheMisses.Inc()
		result.Status = StatusMiss
	default:
		s.config.Metrics.CacheErrors.WithLabelValues("lookup").Inc()
		result.Status = StatusError
		result.Err = err
		s.logger.Warn().Err(err).Str("cache_key", key).Msg("Cache lookup failed, treating as miss")
	}
	return result
}

// Get loads the newest snapshot for key created within maxAge. It returns
// ErrCacheMiss when there is none.
func (s *Store) Get(ctx context.Context, key string, maxAge time.Duration) (*flight.CachedSearch, error) {
	cutoff := s.config.Now().Add(-maxAge).UnixMicro()

	var (
		search  flight.CachedSearch
		rawJSON string
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT search_id, cache_key, raw_parameters, created_at
		FROM flight_searches
		WHERE cache_key = ? AND created_at > ?
		ORDER BY created_at DESC
		LIMIT 1`, key, cutoff).Scan(&search.SearchID, &search.CacheKey, &rawJSON, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("querying cached search: %w", err)
	}
	if err := json.Unmarshal([]byte(rawJSON), &search.Parameters); err != nil {
		return nil, fmt.Errorf("decoding cached parameters: %w", err)
	}
	search.CreatedAt = time.UnixMicro(created).UTC()

	resp, err := s.loadResponse(ctx, search.SearchID)
	if err != nil {
		return nil, err
	}
	search.Response = resp
	return &search, nil
}

type resultRow struct {
	id   int64
	kind string
	it   flight.Itinerary
}

// loadResponse rebuilds the provider response for searchID. Queries run one
// after another because the pool holds a single connection.
func (s *Store) loadResponse(ctx context.Context, searchID string) (*flight.Response, error) {
	results, err := s.loadResults(ctx, searchID)
	if err != nil {
		return nil, err
	}

	index := make(map[int64]*flight.Itinerary, len(results))
	for i := range results {
		index[results[i].id] = &results[i].it
	}
	if err := s.loadSegments(ctx, searchID, index); err != nil {
		return nil, err
	}
	if err := s.loadLayovers(ctx, searchID, index); err != nil {
		return nil, err
	}

	resp := &flight.Response{
		BestFlights:  []flight.Itinerary{},
		OtherFlights: []flight.Itinerary{},
	}
	for _, r := range results {
		if r.kind == "best" {
			resp.BestFlights = append(resp.BestFlights, r.it)
		} else {
			resp.OtherFlights = append(resp.OtherFlights, r.it)
		}
	}

	insights, err := s.loadPriceInsights(ctx, searchID)
	if err != nil {
		return nil, err
	}
	resp.PriceInsights = insights
	return resp, nil
}

func (s *Store) loadResults(ctx context.Context, searchID string) ([]resultRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, result_type, total_price, price_currency, price_text, total_duration,
			carbon_emissions_flight, carbon_emissions_typical, carbon_difference_percent,
			flight_type, airline_logo, departure_token, booking_token, is_inbound_fallback
		FROM flight_results
		WHERE search_id = ?
		ORDER BY CASE result_type WHEN 'best' THEN 0 ELSE 1 END, result_rank`, searchID)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var results []resultRow
	for rows.Next() {
		var (
			r                      resultRow
			price                  sql.NullFloat64
			currency, priceText    sql.NullString
			duration               sql.NullInt64
			co2, co2Typical, co2Pc sql.NullInt64
			kind, logo, dep, book  sql.NullString
		)
		if err := rows.Scan(&r.id, &r.kind, &price, &currency, &priceText, &duration,
			&co2, &co2Typical, &co2Pc,
			&kind, &logo, &dep, &book, &r.it.InboundFallback); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		switch {
		case price.Valid:
			r.it.Price = flight.FormatPrice(price.Float64, currency.String)
		case priceText.Valid:
			// Unparseable provider prices come back verbatim.
			r.it.Price = flight.Price(priceText.String)
		}
		r.it.TotalDuration = int(duration.Int64)
		if co2.Valid {
			r.it.CarbonEmissions = &flight.CarbonEmissions{
				ThisFlight:          int(co2.Int64),
				TypicalForThisRoute: int(co2Typical.Int64),
				DifferencePercent:   int(co2Pc.Int64),
			}
		}
		r.it.Type = kind.String
		r.it.AirlineLogo = logo.String
		r.it.DepartureToken = dep.String
		r.it.BookingToken = book.String
		r.it.Flights = []flight.Segment{}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) loadSegments(ctx context.Context, searchID string, index map[int64]*flight.Itinerary) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fs.flight_result_id, fs.departure_airport_code, da.airport_name, fs.departure_time,
			fs.arrival_airport_code, aa.airport_name, fs.arrival_time, fs.duration_minutes,
			fs.airline_code, fs.airline_name, fs.airline_logo, fs.flight_number,
			fs.airplane_model, fs.travel_class, fs.legroom, fs.often_delayed, fs.extensions
		FROM flight_segments fs
		JOIN flight_results fr ON fr.id = fs.flight_result_id
		LEFT JOIN airports da ON da.airport_code = fs.departure_airport_code
		LEFT JOIN airports aa ON aa.airport_code = fs.arrival_airport_code
		WHERE fr.search_id = ?
		ORDER BY fs.flight_result_id, fs.segment_order`, searchID)
	if err != nil {
		return fmt.Errorf("querying segments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			resultID                   int64
			seg                        flight.Segment
			depName, depTime           sql.NullString
			arrName, arrTime           sql.NullString
			duration                   sql.NullInt64
			airline, logo, number      sql.NullString
			plane, class, legroom, ext sql.NullString
		)
		if err := rows.Scan(&resultID, &seg.DepartureAirport.ID, &depName, &depTime,
			&seg.ArrivalAirport.ID, &arrName, &arrTime, &duration,
			&seg.AirlineCode, &airline, &logo, &number,
			&plane, &class, &legroom, &seg.OftenDelayed, &ext); err != nil {
			return fmt.Errorf("scanning segment: %w", err)
		}
		seg.DepartureAirport.Name = depName.String
		seg.DepartureAirport.Time = depTime.String
		seg.ArrivalAirport.Name = arrName.String
		seg.ArrivalAirport.Time = arrTime.String
		seg.Duration = int(duration.Int64)
		seg.Airline = airline.String
		seg.AirlineLogo = logo.String
		seg.FlightNumber = number.String
		seg.Airplane = plane.String
		seg.TravelClass = class.String
		seg.Legroom = legroom.String
		if ext.Valid && ext.String != "" {
			if err := json.Unmarshal([]byte(ext.String), &seg.Extensions); err != nil {
				return fmt.Errorf("decoding segment extensions: %w", err)
			}
		}

		if it, ok := index[resultID]; ok {
			it.Flights = append(it.Flights, seg)
		}
	}
	return rows.Err()
}

func (s *Store) loadLayovers(ctx context.Context, searchID string, index map[int64]*flight.Itinerary) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.flight_result_id, l.airport_code, a.airport_name, l.duration_minutes, l.is_overnight
		FROM layovers l
		JOIN flight_results fr ON fr.id = l.flight_result_id
		LEFT JOIN airports a ON a.airport_code = l.airport_code
		WHERE fr.search_id = ?
		ORDER BY l.flight_result_id, l.layover_order`, searchID)
	if err != nil {
		return fmt.Errorf("querying layovers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			resultID int64
			l        flight.Layover
			name     sql.NullString
			duration sql.NullInt64
		)
		if err := rows.Scan(&resultID, &l.ID, &name, &duration, &l.Overnight); err != nil {
			return fmt.Errorf("scanning layover: %w", err)
		}
		l.Name = name.String
		l.Duration = int(duration.Int64)
		if it, ok := index[resultID]; ok {
			it.Layovers = append(it.Layovers, l)
		}
	}
	return rows.Err()
}

func (s *Store) loadPriceInsights(ctx context.Context, searchID string) (*flight.PriceInsights, error) {
	var (
		lowest    sql.NullInt64
		level     sql.NullString
		low, high sql.NullInt64
		history   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT lowest_price, price_level, typical_price_low, typical_price_high, price_history
		FROM price_insights WHERE search_id = ?`, searchID).Scan(&lowest, &level, &low, &high, &history)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying price insights: %w", err)
	}

	pi := &flight.PriceInsights{
		LowestPrice: int(lowest.Int64),
		PriceLevel:  level.String,
	}
	if low.Valid && high.Valid {
		pi.TypicalPriceRange = []int{int(low.Int64), int(high.Int64)}
	}
	if history.Valid && history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &pi.PriceHistory); err != nil {
			return nil, fmt.Errorf("decoding price history: %w", err)
		}
	}
	return pi, nil
}
