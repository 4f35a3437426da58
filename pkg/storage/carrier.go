package storage

import (
	"strings"
	"unicode"

	"github.com/Sternrassler/flight-search-cache/pkg/flight"
)

// UnknownCarrier is recorded when no carrier code can be derived.
const UnknownCarrier = "ZZ"

// CarrierCode derives a segment's carrier code.
//
// This is a heuristic. The provider does not always send a code, so the
// code is taken from the first of:
//   - the flight number prefix ("LH 123" -> "LH")
//   - the provider's airline code, when it is 2-3 alphanumerics
//   - the first three alphanumerics of the airline name
//
// and falls back to UnknownCarrier. Name-derived codes can collide for
// unrelated carriers.
func CarrierCode(seg flight.Segment) string {
	if code := carrierFromFlightNumber(seg.FlightNumber); code != "" {
		return code
	}
	if code := canonCarrier(seg.AirlineCode); code != "" {
		return code
	}
	name := alnum(strings.ToUpper(seg.Airline))
	if len(name) > 3 {
		name = name[:3]
	}
	if code := canonCarrier(name); code != "" {
		return code
	}
	return UnknownCarrier
}

// carrierName is the name recorded for a newly seen carrier.
func carrierName(seg flight.Segment, code string) string {
	if name := strings.TrimSpace(seg.Airline); name != "" {
		return name
	}
	if code == UnknownCarrier {
		return "Unknown"
	}
	return code
}

func carrierFromFlightNumber(number string) string {
	fields := strings.Fields(number)
	if len(fields) == 0 {
		return ""
	}
	prefix := alnum(strings.ToUpper(fields[0]))
	if len(prefix) < 2 {
		return ""
	}
	return canonCarrier(prefix[:2])
}

func canonCarrier(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < 2 || len(code) > 3 {
		return ""
	}
	if alnum(code) != code {
		return ""
	}
	return code
}

func alnum(s string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, s)
}
