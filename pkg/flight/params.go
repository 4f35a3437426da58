package flight

import (
	"strings"
	"time"
)

// DateLayout is the ISO date format used for outbound and return dates.
const DateLayout = "2006-01-02"

// Travel classes understood by the provider.
const (
	ClassEconomy        = 1
	ClassPremiumEconomy = 2
	ClassBusiness       = 3
	ClassFirst          = 4
)

// Query type values sent to the provider.
const (
	TripRoundTrip = 1
	TripOneWay    = 2
)

// SearchParameters describes a single flight search.
type SearchParameters struct {
	DepartureID   string `json:"departure_id" toml:"departure_id"`
	ArrivalID     string `json:"arrival_id" toml:"arrival_id"`
	OutboundDate  string `json:"outbound_date" toml:"outbound_date"`
	ReturnDate    string `json:"return_date,omitempty" toml:"return_date"`
	Adults        int    `json:"adults" toml:"adults"`
	Children      int    `json:"children" toml:"children"`
	InfantsInSeat int    `json:"infants_in_seat" toml:"infants_in_seat"`
	InfantsOnLap  int    `json:"infants_on_lap" toml:"infants_on_lap"`
	TravelClass   int    `json:"travel_class" toml:"travel_class"`
	Currency      string `json:"currency" toml:"currency"`
	Language      string `json:"hl" toml:"hl"`
	Country       string `json:"gl" toml:"gl"`
}

// DefaultParameters returns the provider defaults merged into every search.
func DefaultParameters() SearchParameters {
	return SearchParameters{
		Adults:      1,
		TravelClass: ClassEconomy,
		Currency:    "USD",
		Language:    "en",
		Country:     "us",
	}
}

// WithDefaults returns a copy with unset fields filled from DefaultParameters.
// Airport codes and currency are upper-cased.
func (p SearchParameters) WithDefaults() SearchParameters {
	d := DefaultParameters()
	if p.Adults == 0 {
		p.Adults = d.Adults
	}
	if p.TravelClass == 0 {
		p.TravelClass = d.TravelClass
	}
	if p.Currency == "" {
		p.Currency = d.Currency
	}
	if p.Language == "" {
		p.Language = d.Language
	}
	if p.Country == "" {
		p.Country = d.Country
	}
	p.DepartureID = strings.ToUpper(strings.TrimSpace(p.DepartureID))
	p.ArrivalID = strings.ToUpper(strings.TrimSpace(p.ArrivalID))
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	p.OutboundDate = strings.TrimSpace(p.OutboundDate)
	p.ReturnDate = strings.TrimSpace(p.ReturnDate)
	return p
}

// IsRoundTrip reports whether a return date was requested.
func (p SearchParameters) IsRoundTrip() bool {
	return p.ReturnDate != ""
}

// TripType returns the provider query type for the search.
func (p SearchParameters) TripType() int {
	if p.IsRoundTrip() {
		return TripRoundTrip
	}
	return TripOneWay
}

// TotalPassengers returns the sum of all passenger counts.
func (p SearchParameters) TotalPassengers() int {
	return p.Adults + p.Children + p.InfantsInSeat + p.InfantsOnLap
}

// Route returns "DEP-ARR".
func (p SearchParameters) Route() string {
	return p.DepartureID + "-" + p.ArrivalID
}

// Reverse returns one-way parameters for the opposite direction on the
// return date, keeping passengers, class and locale.
func (p SearchParameters) Reverse() SearchParameters {
	r := p
	r.DepartureID, r.ArrivalID = p.ArrivalID, p.DepartureID
	r.OutboundDate = p.ReturnDate
	r.ReturnDate = ""
	return r
}

// ShiftDates moves the outbound date to date and keeps the trip length
// when a return date is set.
func (p SearchParameters) ShiftDates(date time.Time) SearchParameters {
	s := p
	if p.ReturnDate != "" {
		out, err1 := time.Parse(DateLayout, p.OutboundDate)
		ret, err2 := time.Parse(DateLayout, p.ReturnDate)
		if err1 == nil && err2 == nil {
			s.ReturnDate = date.Add(ret.Sub(out)).Format(DateLayout)
		}
	}
	s.OutboundDate = date.Format(DateLayout)
	return s
}

// Values returns the parameter set keyed by provider query names.
// Empty optional strings are omitted.
func (p SearchParameters) Values() map[string]any {
	v := map[string]any{
		"adults":          p.Adults,
		"children":        p.Children,
		"infants_in_seat": p.InfantsInSeat,
		"infants_on_lap":  p.InfantsOnLap,
		"travel_class":    p.TravelClass,
	}
	for k, s := range map[string]string{
		"departure_id":  p.DepartureID,
		"arrival_id":    p.ArrivalID,
		"outbound_date": p.OutboundDate,
		"return_date":   p.ReturnDate,
		"currency":      p.Currency,
		"hl":            p.Language,
		"gl":            p.Country,
	} {
		if s != "" {
			v[k] = s
		}
	}
	return v
}
