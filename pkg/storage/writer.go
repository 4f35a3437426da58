package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/flight-search-cache/pkg/cache"
	"github.com/Sternrassler/flight-search-cache/pkg/flight"
	"github.com/Sternrassler/flight-search-cache/pkg/metrics"
)

// Result groups stored in flight_results.result_type.
const (
	ResultBest  = "best"
	ResultOther = "other"
)

// WriterConfig configures a Writer.
type WriterConfig struct {
	// AutoCreateAirports inserts unknown airport codes as placeholders
	// (name = code) instead of skipping the rows that reference them.
	AutoCreateAirports bool

	Metrics *metrics.Metrics
	Logger  *zerolog.Logger
	Now     func() time.Time
}

// Writer stores normalized search snapshots.
type Writer struct {
	db     *sql.DB
	config WriterConfig
	logger zerolog.Logger
}

// NewWriter creates a writer on db.
func NewWriter(db *sql.DB, cfg WriterConfig) *Writer {
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
	return &Writer{
		db:     db,
		config: cfg,
		logger: logger.With().Str("component", "structured-writer").Logger(),
	}
}

// SearchGraph is a complete search snapshot to persist.
type SearchGraph struct {
	SearchID string
	CacheKey string
	Params   flight.SearchParameters
	Response *flight.Response
	RawID    *int64
}

// StoreReport describes what a Store call persisted.
type StoreReport struct {
	SearchID        string
	Stored          bool
	Skipped         bool
	SkipReason      string
	Results         int
	Segments        int
	Layovers        int
	DroppedSegments int
	DroppedLayovers int
	PriceInsights   bool
}

// Store persists resp as the snapshot for searchID. Storing the same
// searchID again replaces the previous snapshot.
//
// A search whose route airports cannot be resolved is skipped and reported
// in StoreReport, not as an error.
func (w *Writer) Store(ctx context.Context, searchID string, params flight.SearchParameters, resp *flight.Response, rawID *int64) (StoreReport, error) {
	params = params.WithDefaults()
	return w.ReplaceSearchResults(ctx, SearchGraph{
		SearchID: searchID,
		CacheKey: cache.GenerateKey(params),
		Params:   params,
		Response: resp,
		RawID:    rawID,
	})
}

// ReplaceSearchResults deletes every row owned by g.SearchID and writes g in
// a single transaction. Any failure rolls the whole write back.
func (w *Writer) ReplaceSearchResults(ctx context.Context, g SearchGraph) (report StoreReport, err error) {
	report.SearchID = g.SearchID
	logger := w.logger.With().Str("search_id", g.SearchID).Logger()

	defer func() {
		if err != nil {
			w.config.Metrics.StorageFailures.Inc()
			logger.Error().Err(err).Msg("Structured storage failed")
		}
	}()

	if g.Response == nil {
		return report, &StructuredStorageError{SearchID: g.SearchID, Op: "validate", Err: errors.New("nil response")}
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return report, &StructuredStorageError{SearchID: g.SearchID, Op: "begin", Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	op := &writeOp{
		ctx:      ctx,
		tx:       tx,
		auto:     w.config.AutoCreateAirports,
		airports: make(map[string]bool),
		airlines: make(map[string]bool),
	}

	dep, arr := canonAirport(g.Params.DepartureID), canonAirport(g.Params.ArrivalID)
	depOK, err := op.ensureAirport(dep)
	if err != nil {
		return report, &StructuredStorageError{SearchID: g.SearchID, Op: "airport", Err: err}
	}
	arrOK, err := op.ensureAirport(arr)
	if err != nil {
		return report, &StructuredStorageError{SearchID: g.SearchID, Op: "airport", Err: err}
	}
	if !depOK || !arrOK {
		report.Skipped = true
		report.SkipReason = fmt.Sprintf("unknown route airport %s-%s", dep, arr)
		w.config.Metrics.StorageSkips.WithLabelValues("search").Inc()
		logger.Warn().
			Str("departure", dep).
			Str("arrival", arr).
			Msg("Skipping structured storage: route airport not in reference data")
		return report, nil
	}

	if err := op.deleteSearch(g.SearchID); err != nil {
		return report, &StructuredStorageError{SearchID: g.SearchID, Op: "delete", Err: err}
	}

	now := w.config.Now().UnixMicro()
	if err := op.upsertSearch(g, dep, arr, now); err != nil {
		return report, &StructuredStorageError{SearchID: g.SearchID, Op: "upsert search", Err: err}
	}

	groups := []struct {
		kind  string
		items []flight.Itinerary
	}{
		{ResultBest, g.Response.BestFlights},
		{ResultOther, g.Response.OtherFlights},
	}
	for _, group := range groups {
		for i, it := range group.items {
			if err := op.insertResult(g.SearchID, group.kind, i+1, it, g.Params.Currency); err != nil {
				return report, &StructuredStorageError{SearchID: g.SearchID, Op: "insert result", Err: err}
			}
			report.Results++
		}
	}

	ids, err := op.resultIDs(g.SearchID)
	if err != nil {
		return report, &StructuredStorageError{SearchID: g.SearchID, Op: "result ids", Err: err}
	}

	for _, group := range groups {
		for i, it := range group.items {
			id, ok := ids[resultRef{group.kind, i + 1}]
			if !ok {
				return report, &StructuredStorageError{SearchID: g.SearchID, Op: "result ids", Err: fmt.Errorf("no id for %s #%d", group.kind, i+1)}
			}
			stored, dropped, err := op.insertSegments(id, it.Flights)
			if err != nil {
				return report, &StructuredStorageError{SearchID: g.SearchID, Op: "insert segments", Err: err}
			}
			report.Segments += stored
			report.DroppedSegments += dropped

			stored, dropped, err = op.insertLayovers(id, it.Layovers)
			if err != nil {
				return report, &StructuredStorageError{SearchID: g.SearchID, Op: "insert layovers", Err: err}
			}
			report.Layovers += stored
			report.DroppedLayovers += dropped
		}
	}

	if pi := g.Response.PriceInsights; pi != nil {
		if err := op.insertPriceInsights(g.SearchID, pi); err != nil {
			return report, &StructuredStorageError{SearchID: g.SearchID, Op: "insert price insights", Err: err}
		}
		report.PriceInsights = true
	}

	if err := tx.Commit(); err != nil {
		return report, &StructuredStorageError{SearchID: g.SearchID, Op: "commit", Err: err}
	}
	committed = true

	if report.DroppedSegments > 0 {
		w.config.Metrics.StorageSkips.WithLabelValues("segment").Add(float64(report.DroppedSegments))
	}
	if report.DroppedLayovers > 0 {
		w.config.Metrics.StorageSkips.WithLabelValues("layover").Add(float64(report.DroppedLayovers))
	}
	if report.DroppedSegments > 0 || report.DroppedLayovers > 0 {
		logger.Warn().
			Int("dropped_segments", report.DroppedSegments).
			Int("dropped_layovers", report.DroppedLayovers).
			Msg("Dropped rows referencing unknown airports")
	}

	report.Stored = true
	logger.Debug().
		Int("results", report.Results).
		Int("segments", report.Segments).
		Int("layovers", report.Layovers).
		Msg("Stored structured search")
	return report, nil
}

// UpsertAirport inserts or updates one airport reference row.
func (w *Writer) UpsertAirport(ctx context.Context, code, name, city, country, timezone string) error {
	code = canonAirport(code)
	if code == "" {
		return errors.New("empty airport code")
	}
	if name == "" {
		name = code
	}
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO airports (airport_code, airport_name, city, country, timezone)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(airport_code) DO UPDATE SET
			airport_name = excluded.airport_name,
			city = excluded.city,
			country = excluded.country,
			timezone = excluded.timezone`,
		code, name, nullString(city), nullString(country), nullString(timezone))
	if err != nil {
		return fmt.Errorf("upserting airport %s: %w", code, err)
	}
	return nil
}

type resultRef struct {
	kind string
	rank int
}

// writeOp carries the state of one ReplaceSearchResults transaction.
type writeOp struct {
	ctx      context.Context
	tx       *sql.Tx
	auto     bool
	airports map[string]bool
	airlines map[string]bool
}

func canonAirport(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ensureAirport reports whether code exists in airports, creating a
// placeholder when auto-create is enabled.
func (op *writeOp) ensureAirport(code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	if ok, seen := op.airports[code]; seen {
		return ok, nil
	}

	var exists int
	err := op.tx.QueryRowContext(op.ctx, "SELECT 1 FROM airports WHERE airport_code = ?", code).Scan(&exists)
	switch {
	case err == nil:
		op.airports[code] = true
		return true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, err
	}

	if !op.auto {
		op.airports[code] = false
		return false, nil
	}
	if _, err := op.tx.ExecContext(op.ctx,
		"INSERT OR IGNORE INTO airports (airport_code, airport_name) VALUES (?, ?)", code, code); err != nil {
		return false, err
	}
	op.airports[code] = true
	return true, nil
}

func (op *writeOp) ensureAirline(code, name string) error {
	if op.airlines[code] {
		return nil
	}
	if _, err := op.tx.ExecContext(op.ctx,
		"INSERT OR IGNORE INTO airlines (airline_code, airline_name) VALUES (?, ?)", code, name); err != nil {
		return err
	}
	op.airlines[code] = true
	return nil
}

func (op *writeOp) deleteSearch(searchID string) error {
	stmts := []string{
		"DELETE FROM layovers WHERE flight_result_id IN (SELECT id FROM flight_results WHERE search_id = ?)",
		"DELETE FROM flight_segments WHERE flight_result_id IN (SELECT id FROM flight_results WHERE search_id = ?)",
		"DELETE FROM flight_results WHERE search_id = ?",
		"DELETE FROM price_insights WHERE search_id = ?",
	}
	for _, stmt := range stmts {
		if _, err := op.tx.ExecContext(op.ctx, stmt, searchID); err != nil {
			return err
		}
	}
	return nil
}

// upsertSearch writes the flight_searches row. created_at is kept from the
// first write so a replaced snapshot does not look fresher than it is.
func (op *writeOp) upsertSearch(g SearchGraph, dep, arr string, now int64) error {
	raw, err := json.Marshal(g.Params)
	if err != nil {
		return fmt.Errorf("encoding parameters: %w", err)
	}
	var rawID sql.NullInt64
	if g.RawID != nil {
		rawID = sql.NullInt64{Int64: *g.RawID, Valid: true}
	}
	p := g.Params

	_, err = op.tx.ExecContext(op.ctx, `
		INSERT INTO flight_searches (
			search_id, cache_key, departure_airport_code, arrival_airport_code,
			outbound_date, return_date, flight_type, adults, children,
			infants_in_seat, infants_on_lap, travel_class, currency,
			language_code, country_code, raw_parameters, total_results,
			api_query_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(search_id) DO UPDATE SET
			cache_key = excluded.cache_key,
			departure_airport_code = excluded.departure_airport_code,
			arrival_airport_code = excluded.arrival_airport_code,
			outbound_date = excluded.outbound_date,
			return_date = excluded.return_date,
			flight_type = excluded.flight_type,
			adults = excluded.adults,
			children = excluded.children,
			infants_in_seat = excluded.infants_in_seat,
			infants_on_lap = excluded.infants_on_lap,
			travel_class = excluded.travel_class,
			currency = excluded.currency,
			language_code = excluded.language_code,
			country_code = excluded.country_code,
			raw_parameters = excluded.raw_parameters,
			total_results = excluded.total_results,
			api_query_id = excluded.api_query_id,
			updated_at = excluded.updated_at`,
		g.SearchID, g.CacheKey, dep, arr,
		p.OutboundDate, nullString(p.ReturnDate), p.TripType(), p.Adults, p.Children,
		p.InfantsInSeat, p.InfantsOnLap, p.TravelClass, p.Currency,
		nullString(p.Language), nullString(p.Country), string(raw), g.Response.FlightCount(),
		rawID, now, now)
	return err
}

func (op *writeOp) insertResult(searchID, kind string, rank int, it flight.Itinerary, defaultCurrency string) error {
	var price sql.NullFloat64
	if amount, ok := it.Price.Amount(); ok {
		price = sql.NullFloat64{Float64: amount, Valid: true}
	}
	currency := it.Price.Currency()
	if currency == "" {
		currency = defaultCurrency
	}

	var co2Flight, co2Typical, co2Diff sql.NullInt64
	if ce := it.CarbonEmissions; ce != nil {
		co2Flight = sql.NullInt64{Int64: int64(ce.ThisFlight), Valid: true}
		co2Typical = sql.NullInt64{Int64: int64(ce.TypicalForThisRoute), Valid: true}
		co2Diff = sql.NullInt64{Int64: int64(ce.DifferencePercent), Valid: true}
	}

	_, err := op.tx.ExecContext(op.ctx, `
		INSERT INTO flight_results (
			search_id, result_type, result_rank, total_price, price_currency, price_text,
			total_duration, layover_count, carbon_emissions_flight,
			carbon_emissions_typical, carbon_difference_percent, flight_type,
			airline_logo, departure_token, booking_token, is_inbound_fallback
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		searchID, kind, rank, price, currency, nullString(string(it.Price)),
		it.TotalDuration, len(it.Layovers), co2Flight,
		co2Typical, co2Diff, nullString(it.Type),
		nullString(it.AirlineLogo), nullString(it.DepartureToken), nullString(it.BookingToken), it.InboundFallback)
	return err
}

func (op *writeOp) resultIDs(searchID string) (map[resultRef]int64, error) {
	rows, err := op.tx.QueryContext(op.ctx,
		"SELECT id, result_type, result_rank FROM flight_results WHERE search_id = ?", searchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[resultRef]int64)
	for rows.Next() {
		var (
			id  int64
			ref resultRef
		)
		if err := rows.Scan(&id, &ref.kind, &ref.rank); err != nil {
			return nil, err
		}
		ids[ref] = id
	}
	return ids, rows.Err()
}

// insertSegments writes segments in order. Segments touching an airport
// that cannot be resolved are dropped; segment_order keeps the original
// position so gaps are visible.
func (op *writeOp) insertSegments(resultID int64, segments []flight.Segment) (stored, dropped int, err error) {
	for i, seg := range segments {
		dep, arr := canonAirport(seg.DepartureAirport.ID), canonAirport(seg.ArrivalAirport.ID)
		depOK, err := op.ensureAirport(dep)
		if err != nil {
			return stored, dropped, err
		}
		arrOK, err := op.ensureAirport(arr)
		if err != nil {
			return stored, dropped, err
		}
		if !depOK || !arrOK {
			dropped++
			continue
		}

		code := CarrierCode(seg)
		if err := op.ensureAirline(code, carrierName(seg, code)); err != nil {
			return stored, dropped, err
		}

		var extensions sql.NullString
		if len(seg.Extensions) > 0 {
			data, err := json.Marshal(seg.Extensions)
			if err != nil {
				return stored, dropped, err
			}
			extensions = sql.NullString{String: string(data), Valid: true}
		}

		if _, err := op.tx.ExecContext(op.ctx, `
			INSERT INTO flight_segments (
				flight_result_id, segment_order, departure_airport_code, departure_time,
				arrival_airport_code, arrival_time, duration_minutes, airline_code,
				airline_name, airline_logo, flight_number, airplane_model, travel_class,
				legroom, often_delayed, extensions
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			resultID, i+1, dep, nullString(seg.DepartureAirport.Time),
			arr, nullString(seg.ArrivalAirport.Time), seg.Duration, code,
			nullString(seg.Airline), nullString(seg.AirlineLogo), nullString(seg.FlightNumber),
			nullString(seg.Airplane), nullString(seg.TravelClass),
			nullString(seg.Legroom), seg.OftenDelayed, extensions); err != nil {
			return stored, dropped, err
		}
		stored++
	}
	return stored, dropped, nil
}

func (op *writeOp) insertLayovers(resultID int64, layovers []flight.Layover) (stored, dropped int, err error) {
	for i, l := range layovers {
		code := canonAirport(l.ID)
		ok, err := op.ensureAirport(code)
		if err != nil {
			return stored, dropped, err
		}
		if !ok {
			dropped++
			continue
		}
		if _, err := op.tx.ExecContext(op.ctx, `
			INSERT INTO layovers (flight_result_id, layover_order, airport_code, duration_minutes, is_overnight)
			VALUES (?, ?, ?, ?, ?)`,
			resultID, i+1, code, l.Duration, l.Overnight); err != nil {
			return stored, dropped, err
		}
		stored++
	}
	return stored, dropped, nil
}

func (op *writeOp) insertPriceInsights(searchID string, pi *flight.PriceInsights) error {
	var low, high sql.NullInt64
	if len(pi.TypicalPriceRange) >= 2 {
		low = sql.NullInt64{Int64: int64(pi.TypicalPriceRange[0]), Valid: true}
		high = sql.NullInt64{Int64: int64(pi.TypicalPriceRange[1]), Valid: true}
	}
	var history sql.NullString
	if len(pi.PriceHistory) > 0 {
		data, err := json.Marshal(pi.PriceHistory)
		if err != nil {
			return err
		}
		history = sql.NullString{String: string(data), Valid: true}
	}
	var lowest sql.NullInt64
	if pi.LowestPrice > 0 {
		lowest = sql.NullInt64{Int64: int64(pi.LowestPrice), Valid: true}
	}

	_, err := op.tx.ExecContext(op.ctx, `
		INSERT INTO price_insights (search_id, lowest_price, price_level, typical_price_low, typical_price_high, price_history)
		VALUES (?, ?, ?, ?, ?, ?)`,
		searchID, lowest, nullString(pi.PriceLevel), low, high, history)
	return err
}
