package testutil

import (
	"fmt"
	"net/http"

	"github.com/Sternrassler/flight-search-cache/pkg/flight"
)

// Segment builds a segment from dep to arr departing at "date HH:MM".
func Segment(dep, arr, date, clock, flightNumber string) flight.Segment {
	return flight.Segment{
		DepartureAirport: flight.AirportTime{ID: dep, Name: dep + " Airport", Time: date + " " + clock},
		ArrivalAirport:   flight.AirportTime{ID: arr, Name: arr + " Airport", Time: date + " 23:00"},
		Duration:         180,
		Airline:          "Test Air",
		FlightNumber:     flightNumber,
		TravelClass:      "Economy",
	}
}

// Itinerary builds an itinerary with the given price and segments.
func Itinerary(price int, segments ...flight.Segment) flight.Itinerary {
	total := 0
	for _, s := range segments {
		total += s.Duration
	}
	it := flight.Itinerary{
		Flights:       segments,
		TotalDuration: total,
		Price:         flight.Price(fmt.Sprint(price)),
		Type:          "One way",
	}
	for i := 1; i < len(segments); i++ {
		it.Layovers = append(it.Layovers, flight.Layover{
			ID:       segments[i].DepartureAirport.ID,
			Name:     segments[i].DepartureAirport.Name,
			Duration: 60,
		})
	}
	return it
}

// OneWay returns a response with one best and n-1 other direct itineraries
// from dep to arr on date. Prices start at basePrice and increase by 50.
func OneWay(dep, arr, date string, n, basePrice int) *flight.Response {
	resp := &flight.Response{}
	for i := 0; i < n; i++ {
		it := Itinerary(basePrice+50*i, Segment(dep, arr, date, fmt.Sprintf("%02d:00", 6+i), fmt.Sprintf("TA %d", 100+i)))
		if i == 0 {
			resp.BestFlights = append(resp.BestFlights, it)
		} else {
			resp.OtherFlights = append(resp.OtherFlights, it)
		}
	}
	return resp
}

// WithPriceInsights adds price insights to resp.
func WithPriceInsights(resp *flight.Response, lowest int) *flight.Response {
	resp.PriceInsights = &flight.PriceInsights{
		LowestPrice:       lowest,
		PriceLevel:        "typical",
		TypicalPriceRange: []int{lowest, lowest + 200},
		PriceHistory:      [][]int64{{1767225600, int64(lowest + 20)}, {1767312000, int64(lowest)}},
	}
	return resp
}

// ResponseOf wraps a payload as a 200 mock response.
func ResponseOf(resp *flight.Response) MockResponse {
	return NewJSONResponse(http.StatusOK, resp)
}
