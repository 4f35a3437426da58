package storage

import (
	"testing"

	"github.com/Sternrassler/flight-search-cache/pkg/flight"
)

func TestCarrierCode(t *testing.T) {
	tests := []struct {
		name string
		seg  flight.Segment
		want string
	}{
		{"flight number prefix", flight.Segment{FlightNumber: "LH 123", Airline: "Lufthansa"}, "LH"},
		{"lowercase flight number", flight.Segment{FlightNumber: "ba456"}, "BA"},
		{"numeric carrier", flight.Segment{FlightNumber: "9W 12"}, "9W"},
		{"airline code", flight.Segment{AirlineCode: " ua "}, "UA"},
		{"invalid airline code falls to name", flight.Segment{AirlineCode: "U", Airline: "Delta"}, "DEL"},
		{"name with punctuation", flight.Segment{Airline: "Jet-Blue"}, "JET"},
		{"short name", flight.Segment{Airline: "X"}, UnknownCarrier},
		{"nothing", flight.Segment{}, UnknownCarrier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CarrierCode(tt.seg); got != tt.want {
				t.Errorf("CarrierCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCarrierName(t *testing.T) {
	if got := carrierName(flight.Segment{Airline: "Delta"}, "DL"); got != "Delta" {
		t.Errorf("carrierName() = %q, want Delta", got)
	}
	if got := carrierName(flight.Segment{}, "DL"); got != "DL" {
		t.Errorf("carrierName() = %q, want DL", got)
	}
	if got := carrierName(flight.Segment{}, UnknownCarrier); got != "Unknown" {
		t.Errorf("carrierName() = %q, want Unknown", got)
	}
}
