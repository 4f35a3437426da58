package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/Sternrassler/flight-search-cache/internal/testutil"
	"github.com/Sternrassler/flight-search-cache/pkg/flight"
	"github.com/Sternrassler/flight-search-cache/pkg/metrics"
	"github.com/Sternrassler/flight-search-cache/pkg/search"
)

type fakeSearcher struct {
	params flight.SearchParameters
	opts   search.Options
	result search.Result
	week   search.WeekResult
}

func (f *fakeSearcher) SearchFlights(ctx context.Context, params flight.SearchParameters, opts search.Options) search.Result {
	f.params, f.opts = params, opts
	return f.result
}

func (f *fakeSearcher) SearchWeekRange(ctx context.Context, departure, arrival, startDate string, params flight.SearchParameters) search.WeekResult {
	f.params = params
	return f.week
}

func newTestServer(t *testing.T, s searcher) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics.New(reg).APICalls.Inc()
	srv := httptest.NewServer(newMux(s, reg, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeSearcher{})

	resp, body := get(t, srv.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if body != "OK" {
		t.Errorf("body = %q, want OK", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeSearcher{})

	resp, body := get(t, srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, "flight_api_calls_total 1") {
		t.Errorf("metrics output missing flight_api_calls_total")
	}
}

func TestSearchEndpoint(t *testing.T) {
	fake := &fakeSearcher{result: search.Result{
		Success:  true,
		Source:   search.SourceCache,
		SearchID: "search_1",
		Data:     testutil.OneWay("JFK", "LAX", "2026-03-10", 2, 300),
	}}
	srv := newTestServer(t, fake)

	resp, body := get(t, srv.URL+"/search?departure_id=JFK&arrival_id=LAX&outbound_date=2026-03-10&adults=2&force_api=true&max_cache_age_hours=6")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if fake.params.Adults != 2 || fake.params.DepartureID != "JFK" || fake.params.OutboundDate != "2026-03-10" {
		t.Errorf("params = %+v", fake.params)
	}
	if !fake.opts.ForceAPI || fake.opts.MaxCacheAge != 6*time.Hour {
		t.Errorf("opts = %+v", fake.opts)
	}

	var got search.Result
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SearchID != "search_1" || got.Source != search.SourceCache || got.Data.FlightCount() != 2 {
		t.Errorf("result = %+v", got)
	}
}

func TestSearchEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		kind   search.ErrorKind
		status int
	}{
		{"bad integer", "adults=two", "", http.StatusBadRequest},
		{"zero adults", "adults=0", "", http.StatusBadRequest},
		{"bad max age", "max_cache_age_hours=-1", "", http.StatusBadRequest},
		{"validation", "", search.ErrorValidation, http.StatusBadRequest},
		{"rate limited", "", search.ErrorRateLimited, http.StatusTooManyRequests},
		{"transport", "", search.ErrorTransport, http.StatusBadGateway},
		{"application", "", search.ErrorApplication, http.StatusBadGateway},
		{"internal", "", search.ErrorInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSearcher{result: search.Result{Error: &search.Error{Kind: tt.kind, Message: "failed"}}}
			srv := newTestServer(t, fake)

			resp, _ := get(t, srv.URL+"/search?departure_id=JFK&"+tt.query)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestParamsFromFlags(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantAdults int
		wantErr    error
	}{
		{"default adults", nil, 1, nil},
		{"two adults", []string{"--adults", "2"}, 2, nil},
		{"zero adults", []string{"--adults", "0"}, 0, errNoAdults},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got flight.SearchParameters
			cmd := &cli.Command{
				Name:  "test",
				Flags: passengerFlags(),
				Action: func(ctx context.Context, c *cli.Command) error {
					var err error
					got, err = paramsFromFlags(c)
					return err
				},
			}

			args := append([]string{"test", "--from", "JFK", "--to", "LAX"}, tt.args...)
			err := cmd.Run(context.Background(), args)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got.Adults != tt.wantAdults {
				t.Errorf("Adults = %d, want %d", got.Adults, tt.wantAdults)
			}
		})
	}
}

func TestWeekEndpoint(t *testing.T) {
	fake := &fakeSearcher{week: search.WeekResult{Success: true, DateRange: "2026-03-09 to 2026-03-15"}}
	srv := newTestServer(t, fake)

	resp, body := get(t, srv.URL+"/search/week?departure_id=JFK&arrival_id=LAX&start_date=2026-03-09")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "2026-03-09 to 2026-03-15") {
		t.Errorf("body = %s", body)
	}

	fake.week = search.WeekResult{Error: "Invalid start date format"}
	if resp, _ := get(t, srv.URL+"/search/week?start_date=bad"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid start status = %d, want 400", resp.StatusCode)
	}
}

func TestParseCLIDate(t *testing.T) {
	today := time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2026-12-01", "2026-12-01", false},
		{"25-12", "2026-12-25", false},
		{"12-25", "2026-12-25", false},
		{"05-11", "2026-11-05", false},
		{"18-10", "2026-10-18", false},
		{"01-03", "2027-03-01", false},
		{"01-03-2026", "2026-03-01", false},
		{"31-02", "", true},
		{"tomorrow", "", true},
		{"1-2-3-4", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseCLIDate(tt.in, today)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCLIDate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseCLIDate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
