package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/flight-search-cache/pkg/flight"
)

// WeekDays is the length of a week-range search.
const WeekDays = 7

// Trend directions reported in PriceTrend.Trend.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

const bestWeekFlightsLimit = 10

// DaySearcher runs one day of a week range. *Orchestrator implements it.
type DaySearcher interface {
	SearchFlights(ctx context.Context, params flight.SearchParameters, opts Options) Result
}

// DayResult is one day of a week range.
type DayResult struct {
	Date      string `json:"date"`
	DayName   string `json:"day_name"`
	DayOffset int    `json:"day_offset"`
	Result    Result `json:"result"`
	Error     string `json:"error,omitempty"`
}

// WeekFlight is an itinerary tagged with the day it was found on.
type WeekFlight struct {
	flight.Itinerary
	SearchDate string `json:"search_date"`
	DayName    string `json:"day_name"`
	DayOffset  int    `json:"day_offset"`
	IsBest     bool   `json:"is_best"`
}

// WeekdayAnalysis splits the dates that had prices.
type WeekdayAnalysis struct {
	Weekday []string `json:"weekday"`
	Weekend []string `json:"weekend"`
}

// PriceTrend holds per-day price statistics.
type PriceTrend struct {
	DailyMinPrices  map[string]float64 `json:"daily_min_prices"`
	DailyAvgPrices  map[string]float64 `json:"daily_avg_prices"`
	WeekdayAnalysis WeekdayAnalysis    `json:"weekday_analysis"`
	Trend           string             `json:"overall_price_trend"`
}

// DayPrice names a date and its minimum price.
type DayPrice struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// WeekSummary aggregates a week range.
type WeekSummary struct {
	TotalDaysSearched  int       `json:"total_days_searched"`
	SuccessfulSearches int       `json:"successful_searches"`
	FailedSearches     int       `json:"failed_searches"`
	TotalFlightsFound  int       `json:"total_flights_found"`
	AvgFlightsPerDay   float64   `json:"avg_flights_per_day"`
	DateRange          string    `json:"date_range"`
	CheapestDay        *DayPrice `json:"cheapest_day"`
	MostExpensiveDay   *DayPrice `json:"most_expensive_day"`
}

// WeekResult is the outcome of a week-range search.
type WeekResult struct {
	Success         bool         `json:"success"`
	DateRange       string       `json:"date_range,omitempty"`
	DailyResults    []DayResult  `json:"daily_results,omitempty"`
	BestWeekFlights []WeekFlight `json:"best_week_flights,omitempty"`
	AllWeekFlights  []WeekFlight `json:"all_week_flights,omitempty"`
	PriceTrend      PriceTrend   `json:"price_trend"`
	Summary         WeekSummary  `json:"summary"`
	Warning         string       `json:"warning,omitempty"`
	Error           string       `json:"error,omitempty"`
}

// WeekAggregator runs and aggregates seven consecutive day searches.
type WeekAggregator struct {
	logger zerolog.Logger
}

// NewWeekAggregator creates an aggregator. A nil logger uses the global one.
func NewWeekAggregator(logger *zerolog.Logger) *WeekAggregator {
	l := log.Logger
	if logger != nil {
		l = *logger
	}
	return &WeekAggregator{logger: l.With().Str("component", "week").Logger()}
}

// RunWeek searches departure->arrival on startDate and the six following
// days, one after another. params supply passengers, class and currency; a
// return date is shifted along so every day keeps the same trip length.
//
// Inbound fallback itineraries are left out of the flattened flight lists
// and price statistics. Success is true when at least one day succeeded.
func (w *WeekAggregator) RunWeek(ctx context.Context, searcher DaySearcher, departure, arrival, startDate string, params flight.SearchParameters) WeekResult {
	start, err := time.Parse(flight.DateLayout, startDate)
	if err != nil {
		return WeekResult{Error: fmt.Sprintf("Invalid start date format: %s. Use YYYY-MM-DD", startDate)}
	}
	end := start.AddDate(0, 0, WeekDays-1)
	dateRange := startDate + " to " + end.Format(flight.DateLayout)

	params.DepartureID = departure
	params.ArrivalID = arrival
	if params.OutboundDate == "" {
		// ReturnDate, if set, is then relative to startDate.
		params.OutboundDate = startDate
	}

	logger := w.logger.With().Str("route", departure+"-"+arrival).Str("date_range", dateRange).Logger()
	logger.Info().Msg("Week search started")

	result := WeekResult{DateRange: dateRange}
	successful, totalFlights := 0, 0

	for offset := 0; offset < WeekDays; offset++ {
		day := start.AddDate(0, 0, offset)
		date := day.Format(flight.DateLayout)
		dr := DayResult{Date: date, DayName: day.Weekday().String(), DayOffset: offset}

		dr.Result = searcher.SearchFlights(ctx, params.ShiftDates(day), Options{})
		if !dr.Result.Success {
			dr.Error = "Search failed"
			if dr.Result.Error != nil {
				dr.Error = dr.Result.Error.Message
			}
			logger.Warn().Str("date", date).Str("error", dr.Error).Msg("Week day search failed")
			result.DailyResults = append(result.DailyResults, dr)
			continue
		}

		successful++
		flights := dayFlights(dr)
		totalFlights += len(flights)
		result.AllWeekFlights = append(result.AllWeekFlights, flights...)
		result.DailyResults = append(result.DailyResults, dr)
		logger.Debug().Str("date", date).Int("flights", len(flights)).Msg("Week day search succeeded")
	}

	sort.SliceStable(result.AllWeekFlights, func(i, j int) bool {
		return sortPrice(result.AllWeekFlights[i].Price) < sortPrice(result.AllWeekFlights[j].Price)
	})
	best := result.AllWeekFlights
	if len(best) > bestWeekFlightsLimit {
		best = best[:bestWeekFlightsLimit]
	}
	result.BestWeekFlights = best

	result.PriceTrend = analyzePriceTrend(result.DailyResults)
	result.Summary = buildSummary(dateRange, result.PriceTrend, successful, totalFlights)
	result.Success = successful > 0

	switch {
	case successful == 0:
		result.Error = "No successful searches in the 7-day range"
	case successful < WeekDays:
		result.Warning = fmt.Sprintf("Only %d/%d days returned results", successful, WeekDays)
	}

	logger.Info().
		Int("successful_days", successful).
		Int("total_flights", totalFlights).
		Msg("Week search completed")
	return result
}

// dayFlights flattens a successful day, dropping inbound fallbacks.
func dayFlights(dr DayResult) []WeekFlight {
	data := dr.Result.Data
	if data == nil {
		return nil
	}
	var out []WeekFlight
	add := func(its []flight.Itinerary, isBest bool) {
		for _, it := range its {
			if it.InboundFallback {
				continue
			}
			out = append(out, WeekFlight{
				Itinerary:  it,
				SearchDate: dr.Date,
				DayName:    dr.DayName,
				DayOffset:  dr.DayOffset,
				IsBest:     isBest,
			})
		}
	}
	add(data.BestFlights, true)
	add(data.OtherFlights, false)
	return out
}

// sortPrice orders unparseable prices last.
func sortPrice(p flight.Price) float64 {
	if v, ok := p.Amount(); ok {
		return v
	}
	return math.MaxFloat64
}

func analyzePriceTrend(days []DayResult) PriceTrend {
	trend := PriceTrend{
		DailyMinPrices:  make(map[string]float64),
		DailyAvgPrices:  make(map[string]float64),
		WeekdayAnalysis: WeekdayAnalysis{Weekday: []string{}, Weekend: []string{}},
		Trend:           TrendStable,
	}

	var dates []string
	for _, dr := range days {
		if dr.Error != "" {
			continue
		}
		var prices []float64
		for _, f := range dayFlights(dr) {
			if v, ok := f.Price.Amount(); ok && v > 0 {
				prices = append(prices, v)
			}
		}
		if len(prices) == 0 {
			continue
		}

		lowest, sum := prices[0], 0.0
		for _, p := range prices {
			lowest = math.Min(lowest, p)
			sum += p
		}
		trend.DailyMinPrices[dr.Date] = lowest
		trend.DailyAvgPrices[dr.Date] = sum / float64(len(prices))
		dates = append(dates, dr.Date)

		if dr.DayName == time.Saturday.String() || dr.DayName == time.Sunday.String() {
			trend.WeekdayAnalysis.Weekend = append(trend.WeekdayAnalysis.Weekend, dr.Date)
		} else {
			trend.WeekdayAnalysis.Weekday = append(trend.WeekdayAnalysis.Weekday, dr.Date)
		}
	}

	if len(dates) > 1 {
		sort.Strings(dates)
		first, last := trend.DailyMinPrices[dates[0]], trend.DailyMinPrices[dates[len(dates)-1]]
		switch {
		case last < first:
			trend.Trend = TrendDecreasing
		case last > first:
			trend.Trend = TrendIncreasing
		}
	}
	return trend
}

func buildSummary(dateRange string, trend PriceTrend, successful, totalFlights int) WeekSummary {
	s := WeekSummary{
		TotalDaysSearched:  WeekDays,
		SuccessfulSearches: successful,
		FailedSearches:     WeekDays - successful,
		TotalFlightsFound:  totalFlights,
		AvgFlightsPerDay:   roundTo(float64(totalFlights)/float64(max(successful, 1)), 1),
		DateRange:          dateRange,
	}

	dates := make([]string, 0, len(trend.DailyMinPrices))
	for d := range trend.DailyMinPrices {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	for _, d := range dates {
		p := trend.DailyMinPrices[d]
		if s.CheapestDay == nil || p < s.CheapestDay.Price {
			s.CheapestDay = &DayPrice{Date: d, Price: p}
		}
		if s.MostExpensiveDay == nil || p > s.MostExpensiveDay.Price {
			s.MostExpensiveDay = &DayPrice{Date: d, Price: p}
		}
	}
	return s
}

func roundTo(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
