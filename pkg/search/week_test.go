package search

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/flight-search-cache/internal/testutil"
	"github.com/Sternrassler/flight-search-cache/pkg/flight"
)

// fakeDaySearcher answers by outbound date; unknown dates fail.
type fakeDaySearcher struct {
	results map[string]Result
	calls   []flight.SearchParameters
}

func (f *fakeDaySearcher) SearchFlights(ctx context.Context, params flight.SearchParameters, opts Options) Result {
	f.calls = append(f.calls, params)
	if r, ok := f.results[params.OutboundDate]; ok {
		return r
	}
	return Result{Error: &Error{Kind: ErrorTransport, Message: "retry attempts exhausted"}}
}

func newTestAggregator() *WeekAggregator {
	logger := zerolog.Nop()
	return NewWeekAggregator(&logger)
}

func ok(resp *flight.Response) Result {
	return Result{Success: true, Source: SourceAPI, Data: resp}
}

func TestRunWeek_PartialSuccess(t *testing.T) {
	day2 := testutil.OneWay("JFK", "LAX", "2026-03-11", 2, 250)
	fallback := testutil.Itinerary(10, testutil.Segment("LAX", "JFK", "2026-03-18", "07:00", "TA 900"))
	fallback.InboundFallback = true
	day2.OtherFlights = append(day2.OtherFlights, fallback)

	searcher := &fakeDaySearcher{results: map[string]Result{
		"2026-03-09": ok(testutil.OneWay("JFK", "LAX", "2026-03-09", 3, 300)),
		"2026-03-11": ok(day2),
	}}

	got := newTestAggregator().RunWeek(context.Background(), searcher, "JFK", "LAX", "2026-03-09", flight.SearchParameters{})

	if !got.Success {
		t.Fatalf("Success = false, error %q", got.Error)
	}
	if len(searcher.calls) != WeekDays {
		t.Errorf("searches = %d, want %d", len(searcher.calls), WeekDays)
	}
	if got.Warning != "Only 2/7 days returned results" {
		t.Errorf("Warning = %q", got.Warning)
	}
	if got.DateRange != "2026-03-09 to 2026-03-15" {
		t.Errorf("DateRange = %q", got.DateRange)
	}
	if len(got.DailyResults) != WeekDays {
		t.Fatalf("DailyResults = %d, want 7", len(got.DailyResults))
	}
	if dr := got.DailyResults[1]; dr.Error != "retry attempts exhausted" || dr.DayName != "Tuesday" || dr.DayOffset != 1 {
		t.Errorf("day 1 = %+v", dr)
	}

	// 3 + 2 flights; the inbound fallback is excluded.
	if len(got.AllWeekFlights) != 5 {
		t.Fatalf("AllWeekFlights = %d, want 5", len(got.AllWeekFlights))
	}
	if got.Summary.TotalFlightsFound != 5 || got.Summary.SuccessfulSearches != 2 || got.Summary.FailedSearches != 5 {
		t.Errorf("Summary = %+v", got.Summary)
	}
	if got.Summary.AvgFlightsPerDay != 2.5 {
		t.Errorf("AvgFlightsPerDay = %v, want 2.5", got.Summary.AvgFlightsPerDay)
	}

	first := got.AllWeekFlights[0]
	if first.Price != "250" || first.SearchDate != "2026-03-11" || !first.IsBest || first.DayName != "Wednesday" {
		t.Errorf("cheapest flight = %+v", first)
	}
	for i := 1; i < len(got.AllWeekFlights); i++ {
		if sortPrice(got.AllWeekFlights[i].Price) < sortPrice(got.AllWeekFlights[i-1].Price) {
			t.Errorf("flights not sorted at %d", i)
		}
	}
	// Equal prices keep day order.
	if a, b := got.AllWeekFlights[1], got.AllWeekFlights[2]; a.SearchDate != "2026-03-09" || b.SearchDate != "2026-03-11" {
		t.Errorf("ties at 300 = %s, %s, want day 0 first", a.SearchDate, b.SearchDate)
	}

	trend := got.PriceTrend
	if trend.DailyMinPrices["2026-03-09"] != 300 || trend.DailyMinPrices["2026-03-11"] != 250 {
		t.Errorf("DailyMinPrices = %v", trend.DailyMinPrices)
	}
	if trend.DailyAvgPrices["2026-03-09"] != 350 {
		t.Errorf("DailyAvgPrices = %v", trend.DailyAvgPrices)
	}
	if trend.Trend != TrendDecreasing {
		t.Errorf("Trend = %s, want decreasing", trend.Trend)
	}
	if len(trend.WeekdayAnalysis.Weekday) != 2 || len(trend.WeekdayAnalysis.Weekend) != 0 {
		t.Errorf("WeekdayAnalysis = %+v", trend.WeekdayAnalysis)
	}
	if c := got.Summary.CheapestDay; c == nil || c.Date != "2026-03-11" || c.Price != 250 {
		t.Errorf("CheapestDay = %+v", c)
	}
	if e := got.Summary.MostExpensiveDay; e == nil || e.Date != "2026-03-09" || e.Price != 300 {
		t.Errorf("MostExpensiveDay = %+v", e)
	}
}

func TestRunWeek_AllFail(t *testing.T) {
	got := newTestAggregator().RunWeek(context.Background(), &fakeDaySearcher{}, "JFK", "LAX", "2026-03-09", flight.SearchParameters{})

	if got.Success {
		t.Error("Success = true, want false")
	}
	if got.Error != "No successful searches in the 7-day range" {
		t.Errorf("Error = %q", got.Error)
	}
	if got.Summary.AvgFlightsPerDay != 0 || got.Summary.CheapestDay != nil {
		t.Errorf("Summary = %+v", got.Summary)
	}
	if got.PriceTrend.Trend != TrendStable {
		t.Errorf("Trend = %s, want stable", got.PriceTrend.Trend)
	}
}

func TestRunWeek_InvalidStartDate(t *testing.T) {
	searcher := &fakeDaySearcher{}
	got := newTestAggregator().RunWeek(context.Background(), searcher, "JFK", "LAX", "03/09/2026", flight.SearchParameters{})

	if got.Success || got.Error == "" {
		t.Errorf("result = %+v, want error", got)
	}
	if len(searcher.calls) != 0 {
		t.Errorf("searches = %d, want 0", len(searcher.calls))
	}
}

func TestRunWeek_KeepsTripLength(t *testing.T) {
	searcher := &fakeDaySearcher{}
	params := flight.SearchParameters{
		OutboundDate: "2026-03-09",
		ReturnDate:   "2026-03-16",
		Adults:       2,
	}

	newTestAggregator().RunWeek(context.Background(), searcher, "JFK", "LAX", "2026-03-09", params)

	if len(searcher.calls) != WeekDays {
		t.Fatalf("searches = %d", len(searcher.calls))
	}
	last := searcher.calls[6]
	if last.OutboundDate != "2026-03-15" || last.ReturnDate != "2026-03-22" {
		t.Errorf("day 6 dates = %s/%s, want 2026-03-15/2026-03-22", last.OutboundDate, last.ReturnDate)
	}
	if last.DepartureID != "JFK" || last.ArrivalID != "LAX" || last.Adults != 2 {
		t.Errorf("day 6 params = %+v", last)
	}
}

func TestRunWeek_WeekendAndIncreasingTrend(t *testing.T) {
	searcher := &fakeDaySearcher{results: map[string]Result{
		"2026-03-13": ok(testutil.OneWay("JFK", "LAX", "2026-03-13", 1, 200)),
		"2026-03-14": ok(testutil.OneWay("JFK", "LAX", "2026-03-14", 1, 400)),
	}}

	got := newTestAggregator().RunWeek(context.Background(), searcher, "JFK", "LAX", "2026-03-09", flight.SearchParameters{})

	if got.PriceTrend.Trend != TrendIncreasing {
		t.Errorf("Trend = %s, want increasing", got.PriceTrend.Trend)
	}
	if w := got.PriceTrend.WeekdayAnalysis.Weekend; len(w) != 1 || w[0] != "2026-03-14" {
		t.Errorf("Weekend = %v", w)
	}
}

func TestSortPrice_UnparseableLast(t *testing.T) {
	if sortPrice("n/a") <= sortPrice("99999 USD") {
		t.Error("unparseable price sorts before a real one")
	}
}
