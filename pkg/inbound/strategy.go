// Package inbound repairs round-trip responses that arrive without a return
// leg by merging in a one-way search for the reverse route.
package inbound

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/flight-search-cache/pkg/client"
	"github.com/Sternrassler/flight-search-cache/pkg/flight"
	"github.com/Sternrassler/flight-search-cache/pkg/metrics"
)

// Fetcher performs one provider search. *client.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, params flight.SearchParameters) (*client.FetchResult, error)
}

// Status is the result of EnsureInbound.
type Status string

const (
	// StatusNotApplicable: the search is one-way or the response is empty.
	StatusNotApplicable Status = "not_applicable"
	// StatusAlreadyPresent: the response already contains a return leg.
	StatusAlreadyPresent Status = "already_present"
	// StatusMerged: a one-way inbound search was merged into other flights.
	StatusMerged Status = "merged"
	// StatusFailed: the inbound search failed; the response is unchanged.
	StatusFailed Status = "failed"
)

// Outcome describes what EnsureInbound did.
type Outcome struct {
	Status Status `json:"status"`
	// Added is the number of itineraries appended.
	Added int `json:"added,omitempty"`
	// SearchID of the inbound one-way search, when one was made.
	SearchID string `json:"search_id,omitempty"`
	Err      error  `json:"-"`
}

// Strategy detects and fills missing inbound legs.
type Strategy struct {
	fetcher Fetcher
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a strategy. A nil m gets private metrics and a nil logger the
// global one.
func New(fetcher Fetcher, m *metrics.Metrics, logger *zerolog.Logger) *Strategy {
	if m == nil {
		m = metrics.New(nil)
	}
	l := log.Logger
	if logger != nil {
		l = *logger
	}
	return &Strategy{
		fetcher: fetcher,
		metrics: m,
		logger:  l.With().Str("component", "inbound").Logger(),
	}
}

// EnsureInbound returns resp with a return leg for round-trip params.
//
// When resp has no segment on the reverse route and no segment timed on the
// return date, one one-way search arrival->departure on the return date is
// made and its itineraries are appended to OtherFlights, tagged
// InboundFallback. resp itself is never modified; a merged result is a copy.
// Failures are returned in Outcome and never block the caller.
func (s *Strategy) EnsureInbound(ctx context.Context, resp *flight.Response, params flight.SearchParameters) (*flight.Response, Outcome) {
	params = params.WithDefaults()
	if resp == nil || !params.IsRoundTrip() {
		return resp, s.record(Outcome{Status: StatusNotApplicable})
	}

	if HasInbound(resp, params.DepartureID, params.ArrivalID, params.ReturnDate) {
		return resp, s.record(Outcome{Status: StatusAlreadyPresent})
	}

	logger := s.logger.With().
		Str("route", params.Route()).
		Str("return_date", params.ReturnDate).
		Logger()
	logger.Info().Msg("Inbound leg missing, fetching one-way fallback")

	inbound := params.Reverse()
	result, err := s.fetcher.Fetch(ctx, inbound)
	if err == nil && (result == nil || result.Response == nil) {
		err = errors.New("empty inbound response")
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Inbound fallback failed")
		return resp, s.record(Outcome{Status: StatusFailed, Err: err})
	}

	merged := resp.Clone()
	added := 0
	for _, group := range [][]flight.Itinerary{result.Response.BestFlights, result.Response.OtherFlights} {
		for _, it := range group {
			it.InboundFallback = true
			merged.OtherFlights = append(merged.OtherFlights, it)
			added++
		}
	}

	logger.Info().
		Int("added", added).
		Str("inbound_search_id", result.SearchID).
		Msg("Merged inbound fallback flights")
	return merged, s.record(Outcome{Status: StatusMerged, Added: added, SearchID: result.SearchID})
}

func (s *Strategy) record(o Outcome) Outcome {
	s.metrics.InboundFallbacks.WithLabelValues(string(o.Status)).Inc()
	return o
}

// HasInbound reports whether any segment flies arrival->departure or departs
// or arrives on returnDate.
func HasInbound(resp *flight.Response, departure, arrival, returnDate string) bool {
	departure = strings.ToUpper(departure)
	arrival = strings.ToUpper(arrival)

	for _, group := range [][]flight.Itinerary{resp.BestFlights, resp.OtherFlights} {
		for _, it := range group {
			for _, seg := range it.Flights {
				from := strings.ToUpper(seg.DepartureAirport.ID)
				to := strings.ToUpper(seg.ArrivalAirport.ID)
				if from == arrival && to == departure {
					return true
				}
				if returnDate != "" && (strings.HasPrefix(seg.DepartureAirport.Time, returnDate) ||
					strings.HasPrefix(seg.ArrivalAirport.Time, returnDate)) {
					return true
				}
			}
		}
	}
	return false
}
