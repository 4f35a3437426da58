package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/flight-search-cache/pkg/flight"
)

// parseCLIDate accepts YYYY-MM-DD as well as the short forms DD-MM,
// DD-MM-YYYY and MM-DD (when the second part is > 12). Ambiguous short
// forms are read day first. A short form without a year that already
// passed this year rolls over to next year.
func parseCLIDate(raw string, today time.Time) (string, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(flight.DateLayout, raw); err == nil {
		return t.Format(flight.DateLayout), nil
	}

	parts := strings.Split(raw, "-")
	if len(parts) != 2 && len(parts) != 3 {
		return "", fmt.Errorf("invalid date %q: use YYYY-MM-DD or DD-MM[-YYYY]", raw)
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", fmt.Errorf("invalid date %q: use YYYY-MM-DD or DD-MM[-YYYY]", raw)
		}
		nums[i] = n
	}

	day, month := nums[0], nums[1]
	if nums[0] <= 12 && nums[1] > 12 {
		day, month = nums[1], nums[0]
	}
	year, explicitYear := today.Year(), len(nums) == 3
	if explicitYear {
		year = nums[2]
	}

	candidate, ok := makeDate(year, month, day)
	if !ok {
		return "", fmt.Errorf("invalid date %q", raw)
	}
	midnight := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if !explicitYear && candidate.Before(midnight) {
		if candidate, ok = makeDate(year+1, month, day); !ok {
			return "", fmt.Errorf("invalid date %q", raw)
		}
	}
	return candidate.Format(flight.DateLayout), nil
}

// makeDate rejects dates time.Date would normalize, like 31-02.
func makeDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}
