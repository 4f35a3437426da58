package client

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/flight-search-cache/pkg/flight"
)

// ValidationRules bound the accepted search parameters.
type ValidationRules struct {
	// EnforceHorizon requires dates between MinDaysAhead and MaxDaysAhead
	// days from today.
	EnforceHorizon bool
	MinDaysAhead   int
	MaxDaysAhead   int

	MaxPassengers int

	// EnforceInfantRule rejects more lap infants than adults.
	EnforceInfantRule bool
}

// DefaultValidationRules returns the provider's limits.
func DefaultValidationRules() ValidationRules {
	return ValidationRules{
		EnforceHorizon:    true,
		MinDaysAhead:      1,
		MaxDaysAhead:      365,
		MaxPassengers:     9,
		EnforceInfantRule: true,
	}
}

// Validate checks p against the rules relative to now. It returns a
// *ValidationError listing every problem, or nil.
func (r ValidationRules) Validate(p flight.SearchParameters, now time.Time) error {
	var errs []string

	if p.DepartureID == "" {
		errs = append(errs, "required field missing: departure_id")
	} else if !isAirportCode(p.DepartureID) {
		errs = append(errs, fmt.Sprintf("invalid departure airport code: %q", p.DepartureID))
	}
	if p.ArrivalID == "" {
		errs = append(errs, "required field missing: arrival_id")
	} else if !isAirportCode(p.ArrivalID) {
		errs = append(errs, fmt.Sprintf("invalid arrival airport code: %q", p.ArrivalID))
	}
	if p.DepartureID != "" && p.DepartureID == p.ArrivalID {
		errs = append(errs, "departure and arrival airports must differ")
	}

	var outbound, ret time.Time
	var outboundOK, returnOK bool
	if p.OutboundDate == "" {
		errs = append(errs, "required field missing: outbound_date")
	} else {
		outbound, outboundOK = r.checkDate("outbound", p.OutboundDate, now, &errs)
	}
	if p.ReturnDate != "" {
		ret, returnOK = r.checkDate("return", p.ReturnDate, now, &errs)
	}
	if outboundOK && returnOK && ret.Before(outbound) {
		errs = append(errs, "return date earlier than outbound date")
	}

	if p.Adults < 1 || p.Children < 0 || p.InfantsInSeat < 0 || p.InfantsOnLap < 0 {
		errs = append(errs, "invalid passenger configuration: at least one adult and no negative counts")
	}
	if r.MaxPassengers > 0 && p.TotalPassengers() > r.MaxPassengers {
		errs = append(errs, fmt.Sprintf("too many passengers: %d > %d", p.TotalPassengers(), r.MaxPassengers))
	}
	if r.EnforceInfantRule && p.InfantsOnLap > p.Adults {
		errs = append(errs, "more lap infants than adults")
	}
	if p.TravelClass < flight.ClassEconomy || p.TravelClass > flight.ClassFirst {
		errs = append(errs, fmt.Sprintf("invalid travel class: %d", p.TravelClass))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// checkDate parses s and checks the horizon. ok reports a parseable date.
func (r ValidationRules) checkDate(field, s string, now time.Time, errs *[]string) (time.Time, bool) {
	d, err := time.Parse(flight.DateLayout, s)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("invalid %s date: %q (want YYYY-MM-DD)", field, s))
		return time.Time{}, false
	}
	if r.EnforceHorizon {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		days := int(d.Sub(today).Hours() / 24)
		if days < r.MinDaysAhead || days > r.MaxDaysAhead {
			*errs = append(*errs, fmt.Sprintf("%s date %s outside %d..%d days ahead", field, s, r.MinDaysAhead, r.MaxDaysAhead))
		}
	}
	return d, true
}

func isAirportCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// BuildQuery renders the provider query for p, which should already carry
// defaults.
func BuildQuery(p flight.SearchParameters, engine, apiKey string) url.Values {
	q := url.Values{}
	q.Set("engine", engine)
	q.Set("api_key", apiKey)
	q.Set("departure_id", p.DepartureID)
	q.Set("arrival_id", p.ArrivalID)
	q.Set("outbound_date", p.OutboundDate)
	if p.ReturnDate != "" {
		q.Set("return_date", p.ReturnDate)
	}
	q.Set("type", strconv.Itoa(p.TripType()))
	q.Set("adults", strconv.Itoa(p.Adults))
	q.Set("children", strconv.Itoa(p.Children))
	q.Set("infants_in_seat", strconv.Itoa(p.InfantsInSeat))
	q.Set("infants_on_lap", strconv.Itoa(p.InfantsOnLap))
	q.Set("travel_class", strconv.Itoa(p.TravelClass))
	q.Set("currency", p.Currency)
	q.Set("hl", p.Language)
	q.Set("gl", p.Country)
	return q
}
