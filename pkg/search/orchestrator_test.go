package search

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/flight-search-cache/internal/testutil"
	"github.com/Sternrassler/flight-search-cache/pkg/cache"
	"github.com/Sternrassler/flight-search-cache/pkg/client"
	"github.com/Sternrassler/flight-search-cache/pkg/flight"
	"github.com/Sternrassler/flight-search-cache/pkg/inbound"
	"github.com/Sternrassler/flight-search-cache/pkg/metrics"
	"github.com/Sternrassler/flight-search-cache/pkg/ratelimit"
	"github.com/Sternrassler/flight-search-cache/pkg/storage"
)

var searchNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type harness struct {
	mock    *testutil.MockSerpAPI
	orch    *Orchestrator
	metrics *metrics.Metrics
	raw     *storage.RawStore
	now     time.Time
}

func newHarness(t *testing.T, modify func(*client.Config, *Config)) *harness {
	t.Helper()

	h := &harness{mock: testutil.NewMockSerpAPI(), metrics: metrics.New(nil), now: searchNow}
	t.Cleanup(h.mock.Close)
	clock := func() time.Time { return h.now }
	logger := zerolog.Nop()

	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "search.db"))
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	h.raw = storage.NewRawStore(db)

	ccfg := client.DefaultConfig("test-key")
	ccfg.BaseURL = h.mock.URL()
	ccfg.Retry = client.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	ccfg.RawSink = h.raw
	ccfg.Metrics = h.metrics
	ccfg.Logger = &logger
	ccfg.Now = clock

	ocfg := Config{
		Logger: &logger,
		Now:    clock,
	}
	if modify != nil {
		modify(&ccfg, &ocfg)
	}

	c, err := client.New(ccfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	ocfg.Client = c
	ocfg.Cache = cache.NewStore(db, cache.Config{Metrics: h.metrics, Logger: &logger, Now: clock})
	if ocfg.Writer == nil {
		ocfg.Writer = storage.NewWriter(db, storage.WriterConfig{
			AutoCreateAirports: true,
			Metrics:            h.metrics,
			Logger:             &logger,
			Now:                clock,
		})
	}
	ocfg.Inbound = inbound.New(c, h.metrics, &logger)

	h.orch = NewOrchestrator(ocfg)
	return h
}

func oneWay() flight.SearchParameters {
	return flight.SearchParameters{DepartureID: "JFK", ArrivalID: "LAX", OutboundDate: "2026-03-10"}
}

func TestSearchFlights_CacheFirst(t *testing.T) {
	h := newHarness(t, nil)
	h.mock.SetDefault(testutil.ResponseOf(testutil.OneWay("JFK", "LAX", "2026-03-10", 3, 300)))
	ctx := context.Background()

	first := h.orch.SearchFlights(ctx, oneWay(), Options{})
	if !first.Success || first.Source != SourceAPI {
		t.Fatalf("first = %+v, want API success", first)
	}
	if first.Storage == nil || !first.Storage.Stored {
		t.Errorf("Storage = %+v, want stored", first.Storage)
	}
	if first.Inbound != nil {
		t.Errorf("Inbound = %+v, want nil for one-way", first.Inbound)
	}

	h.now = searchNow.Add(90 * time.Minute)
	second := h.orch.SearchFlights(ctx, oneWay(), Options{})
	if !second.Success || second.Source != SourceCache {
		t.Fatalf("second = %+v, want cache hit", second)
	}
	if second.SearchID != first.SearchID {
		t.Errorf("SearchID = %s, want %s", second.SearchID, first.SearchID)
	}
	if second.CacheAgeHours != 1.5 {
		t.Errorf("CacheAgeHours = %v, want 1.5", second.CacheAgeHours)
	}
	if second.Data.FlightCount() != 3 {
		t.Errorf("cached flights = %d, want 3", second.Data.FlightCount())
	}
	if h.mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1", h.mock.GetRequestCount())
	}

	forced := h.orch.SearchFlights(ctx, oneWay(), Options{ForceAPI: true})
	if forced.Source != SourceAPI || h.mock.GetRequestCount() != 2 {
		t.Errorf("ForceAPI source = %s, requests = %d", forced.Source, h.mock.GetRequestCount())
	}

	if got := promtest.ToFloat64(h.metrics.CacheHits); got != 1 {
		t.Errorf("CacheHits = %v, want 1", got)
	}
}

func TestSearchFlights_MaxCacheAge(t *testing.T) {
	h := newHarness(t, nil)
	h.mock.SetDefault(testutil.ResponseOf(testutil.OneWay("JFK", "LAX", "2026-03-10", 1, 300)))
	ctx := context.Background()

	h.orch.SearchFlights(ctx, oneWay(), Options{})
	h.now = searchNow.Add(2 * time.Hour)

	res := h.orch.SearchFlights(ctx, oneWay(), Options{MaxCacheAge: time.Hour})
	if res.Source != SourceAPI {
		t.Errorf("Source = %s, want api for stale snapshot", res.Source)
	}
}

func TestSearchFlights_MaxCacheAgeDoesNotPruneOthers(t *testing.T) {
	h := newHarness(t, nil)
	h.mock.SetDefault(testutil.ResponseOf(testutil.OneWay("JFK", "LAX", "2026-03-10", 1, 300)))
	ctx := context.Background()

	h.orch.SearchFlights(ctx, oneWay(), Options{})

	h.now = searchNow.Add(2 * time.Hour)
	other := flight.SearchParameters{DepartureID: "SFO", ArrivalID: "SEA", OutboundDate: "2026-03-10"}
	if res := h.orch.SearchFlights(ctx, other, Options{MaxCacheAge: time.Hour}); !res.Success {
		t.Fatalf("SFO-SEA search = %+v", res.Error)
	}

	h.now = searchNow.Add(3 * time.Hour)
	again := h.orch.SearchFlights(ctx, oneWay(), Options{})
	if again.Source != SourceCache {
		t.Errorf("JFK-LAX source = %s, want cache (3h old under a 24h TTL)", again.Source)
	}
	if h.mock.GetRequestCount() != 2 {
		t.Errorf("requests = %d, want 2", h.mock.GetRequestCount())
	}
}

func TestSearchFlights_RoundTripMergesInbound(t *testing.T) {
	h := newHarness(t, nil)
	h.mock.SetRouteResponse("JFK", "LAX", testutil.ResponseOf(testutil.OneWay("JFK", "LAX", "2026-03-10", 2, 300)))
	h.mock.SetRouteResponse("LAX", "JFK", testutil.ResponseOf(testutil.OneWay("LAX", "JFK", "2026-03-17", 3, 280)))

	params := oneWay()
	params.ReturnDate = "2026-03-17"
	res := h.orch.SearchFlights(context.Background(), params, Options{})

	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if res.Inbound == nil || res.Inbound.Status != inbound.StatusMerged || res.Inbound.Added != 3 {
		t.Errorf("Inbound = %+v, want merged +3", res.Inbound)
	}
	if len(res.Data.OtherFlights) != 4 {
		t.Errorf("other flights = %d, want 4", len(res.Data.OtherFlights))
	}
	if h.mock.GetRequestCount() != 2 {
		t.Errorf("requests = %d, want 2", h.mock.GetRequestCount())
	}

	// The merged snapshot is what the cache serves.
	cached := h.orch.SearchFlights(context.Background(), params, Options{})
	if cached.Source != SourceCache {
		t.Fatalf("Source = %s, want cache", cached.Source)
	}
	fallbacks := 0
	for _, it := range cached.Data.OtherFlights {
		if it.InboundFallback {
			fallbacks++
		}
	}
	if fallbacks != 3 {
		t.Errorf("cached fallback itineraries = %d, want 3", fallbacks)
	}
}

func TestSearchFlights_DefaultReturnOffset(t *testing.T) {
	h := newHarness(t, func(_ *client.Config, o *Config) { o.DefaultReturnOffsetDays = 7 })
	h.mock.SetDefault(testutil.ResponseOf(testutil.OneWay("JFK", "LAX", "2026-03-17", 1, 300)))

	h.orch.SearchFlights(context.Background(), oneWay(), Options{})

	q := h.mock.LastRequest()
	if q.Get("return_date") != "2026-03-17" || q.Get("type") != "1" {
		t.Errorf("query return_date = %q type = %q, want round trip returning 2026-03-17", q.Get("return_date"), q.Get("type"))
	}
}

func TestSearchFlights_Errors(t *testing.T) {
	tests := []struct {
		name     string
		params   func() flight.SearchParameters
		setup    func(h *harness)
		modify   func(*client.Config, *Config)
		wantKind ErrorKind
		requests int
	}{
		{
			name: "validation",
			params: func() flight.SearchParameters {
				p := oneWay()
				p.ArrivalID = "JFK"
				p.Adults = 12
				return p
			},
			wantKind: ErrorValidation,
			requests: 0,
		},
		{
			name:     "transport after retries",
			params:   oneWay,
			setup:    func(h *harness) { h.mock.SetDefault(testutil.NewServerErrorResponse()) },
			wantKind: ErrorTransport,
			requests: 2,
		},
		{
			name:     "application error",
			params:   oneWay,
			setup:    func(h *harness) { h.mock.SetDefault(testutil.NewApplicationErrorResponse("Invalid API key")) },
			wantKind: ErrorApplication,
			requests: 1,
		},
		{
			name:   "rate limited",
			params: oneWay,
			modify: func(c *client.Config, _ *Config) {
				w, _ := ratelimit.NewWindow(ratelimit.Config{PerMinute: 1, PerHour: 10})
				_ = w.Record(context.Background())
				c.Limiter = w
			},
			wantKind: ErrorRateLimited,
			requests: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.modify)
			if tt.setup != nil {
				tt.setup(h)
			}

			res := h.orch.SearchFlights(context.Background(), tt.params(), Options{})
			if res.Success {
				t.Fatal("Success = true, want failure")
			}
			if res.Error == nil || res.Error.Kind != tt.wantKind {
				t.Fatalf("Error = %+v, want kind %s", res.Error, tt.wantKind)
			}
			if h.mock.GetRequestCount() != tt.requests {
				t.Errorf("requests = %d, want %d", h.mock.GetRequestCount(), tt.requests)
			}
		})
	}
}

func TestSearchFlights_ValidationDetails(t *testing.T) {
	h := newHarness(t, nil)
	p := oneWay()
	p.ArrivalID = "JFK"
	p.Adults = 12

	res := h.orch.SearchFlights(context.Background(), p, Options{})
	if res.Error == nil || len(res.Error.Details) < 2 {
		t.Fatalf("Error = %+v, want every problem listed", res.Error)
	}
	var verr *client.ValidationError
	if !errors.As(res.Error, &verr) {
		t.Error("Error does not unwrap to *client.ValidationError")
	}
}

type failingWriter struct{}

func (failingWriter) Store(ctx context.Context, searchID string, params flight.SearchParameters, resp *flight.Response, rawID *int64) (storage.StoreReport, error) {
	return storage.StoreReport{}, &storage.StructuredStorageError{SearchID: searchID, Op: "commit", Err: errors.New("disk full")}
}

func TestSearchFlights_StorageFailureIsNonFatal(t *testing.T) {
	h := newHarness(t, func(_ *client.Config, o *Config) { o.Writer = failingWriter{} })
	h.mock.SetDefault(testutil.ResponseOf(testutil.OneWay("JFK", "LAX", "2026-03-10", 2, 300)))

	res := h.orch.SearchFlights(context.Background(), oneWay(), Options{})
	if !res.Success || res.Source != SourceAPI || res.Data.FlightCount() != 2 {
		t.Fatalf("result = %+v, want API success despite storage failure", res)
	}
	if res.Storage != nil {
		t.Errorf("Storage = %+v, want nil", res.Storage)
	}

	// Raw data was still persisted.
	if n, _ := h.raw.Count(context.Background()); n != 1 {
		t.Errorf("raw records = %d, want 1", n)
	}
}

func TestSearchWeekRange(t *testing.T) {
	h := newHarness(t, nil)
	h.mock.SetDefault(testutil.NewJSONResponse(http.StatusBadRequest, map[string]string{"error": "bad"}))
	h.mock.Enqueue(
		testutil.ResponseOf(testutil.OneWay("JFK", "LAX", "2026-03-09", 2, 300)),
	)

	got := h.orch.SearchWeekRange(context.Background(), "JFK", "LAX", "2026-03-09", flight.SearchParameters{})
	if !got.Success {
		t.Fatalf("Success = false, error %q", got.Error)
	}
	if got.Summary.SuccessfulSearches != 1 || len(got.AllWeekFlights) != 2 {
		t.Errorf("summary = %+v", got.Summary)
	}
	if got.Warning != "Only 1/7 days returned results" {
		t.Errorf("Warning = %q", got.Warning)
	}
}
