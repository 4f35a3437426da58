package flight

import "time"

// Response is the decoded search provider payload.
type Response struct {
	BestFlights   []Itinerary    `json:"best_flights"`
	OtherFlights  []Itinerary    `json:"other_flights"`
	PriceInsights *PriceInsights `json:"price_insights,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// FlightCount returns the number of itineraries in both buckets.
func (r *Response) FlightCount() int {
	if r == nil {
		return 0
	}
	return len(r.BestFlights) + len(r.OtherFlights)
}

// Clone returns a copy whose itinerary slices can be appended to without
// affecting r.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	c.BestFlights = append([]Itinerary(nil), r.BestFlights...)
	c.OtherFlights = append([]Itinerary(nil), r.OtherFlights...)
	return &c
}

// Itinerary is one ranked candidate itinerary.
type Itinerary struct {
	Flights         []Segment        `json:"flights"`
	Layovers        []Layover        `json:"layovers,omitempty"`
	TotalDuration   int              `json:"total_duration"`
	CarbonEmissions *CarbonEmissions `json:"carbon_emissions,omitempty"`
	Price           Price            `json:"price"`
	Type            string           `json:"type,omitempty"`
	AirlineLogo     string           `json:"airline_logo,omitempty"`
	DepartureToken  string           `json:"departure_token,omitempty"`
	BookingToken    string           `json:"booking_token,omitempty"`

	// InboundFallback marks itineraries appended by the inbound merge.
	InboundFallback bool `json:"inbound_fallback,omitempty"`
}

// Segment is one leg of an itinerary.
type Segment struct {
	DepartureAirport AirportTime `json:"departure_airport"`
	ArrivalAirport   AirportTime `json:"arrival_airport"`
	Duration         int         `json:"duration"`
	Airplane         string      `json:"airplane,omitempty"`
	Airline          string      `json:"airline,omitempty"`
	AirlineCode      string      `json:"airline_code,omitempty"`
	AirlineLogo      string      `json:"airline_logo,omitempty"`
	TravelClass      string      `json:"travel_class,omitempty"`
	FlightNumber     string      `json:"flight_number,omitempty"`
	Legroom          string      `json:"legroom,omitempty"`
	Extensions       []string    `json:"extensions,omitempty"`
	OftenDelayed     bool        `json:"often_delayed_by_over_30_min,omitempty"`
}

// AirportTime is an airport with a local "YYYY-MM-DD HH:MM" timestamp.
type AirportTime struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Time string `json:"time,omitempty"`
}

// Layover is a connection between two segments.
type Layover struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Duration  int    `json:"duration"`
	Overnight bool   `json:"overnight,omitempty"`
}

// CarbonEmissions holds emission estimates in grams.
type CarbonEmissions struct {
	ThisFlight          int `json:"this_flight"`
	TypicalForThisRoute int `json:"typical_for_this_route"`
	DifferencePercent   int `json:"difference_percent"`
}

// PriceInsights summarizes provider pricing data for a search.
type PriceInsights struct {
	LowestPrice       int       `json:"lowest_price,omitempty"`
	PriceLevel        string    `json:"price_level,omitempty"`
	TypicalPriceRange []int     `json:"typical_price_range,omitempty"`
	PriceHistory      [][]int64 `json:"price_history,omitempty"`
}

// CachedSearch is a search reconstructed from structured storage.
type CachedSearch struct {
	SearchID   string
	CacheKey   string
	Parameters SearchParameters
	CreatedAt  time.Time
	Response   *Response
}

// Age returns how old the cached search is relative to now.
func (c *CachedSearch) Age(now time.Time) time.Duration {
	return now.Sub(c.CreatedAt)
}

// RawRecord is an unmodified provider response body, persisted before any
// decoding happens.
type RawRecord struct {
	SearchID   string
	RequestID  string
	Parameters SearchParameters
	StatusCode int
	Body       []byte
	FetchedAt  time.Time
}
