package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/Sternrassler/flight-search-cache/internal/app"
	"github.com/Sternrassler/flight-search-cache/pkg/flight"
	"github.com/Sternrassler/flight-search-cache/pkg/search"
)

// searcher is the part of *search.Orchestrator the handlers use.
type searcher interface {
	SearchFlights(ctx context.Context, params flight.SearchParameters, opts search.Options) search.Result
	SearchWeekRange(ctx context.Context, departure, arrival, startDate string, params flight.SearchParameters) search.WeekResult
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve searches over HTTP with /health and /metrics",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "Listen address (default from config)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, c, func(ctx context.Context, a *app.App) error {
				orch, err := a.RequireSearch()
				if err != nil {
					return err
				}
				addr := c.String("listen")
				if addr == "" {
					addr = a.Config.Server.ListenAddr
				}

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				srv := &http.Server{
					Addr:              addr,
					Handler:           newMux(orch, a.Registry, a.Logger),
					ReadHeaderTimeout: 10 * time.Second,
				}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()

				a.Logger.Info().Str("addr", addr).Msg("Starting flight search server")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				a.Logger.Info().Msg("Server stopped")
				return nil
			})
		},
	}
}

func newMux(s searcher, reg *prometheus.Registry, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /search", searchHandler(s, logger))
	mux.HandleFunc("GET /search/week", weekHandler(s, logger))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// paramsFromQuery reads search parameters using the provider's query names.
func paramsFromQuery(r *http.Request) (flight.SearchParameters, error) {
	q := r.URL.Query()
	p := flight.SearchParameters{
		DepartureID:  q.Get("departure_id"),
		ArrivalID:    q.Get("arrival_id"),
		OutboundDate: q.Get("outbound_date"),
		ReturnDate:   q.Get("return_date"),
		Currency:     q.Get("currency"),
	}
	ints := map[string]*int{
		"adults":          &p.Adults,
		"children":        &p.Children,
		"infants_in_seat": &p.InfantsInSeat,
		"infants_on_lap":  &p.InfantsOnLap,
		"travel_class":    &p.TravelClass,
	}
	for name, dst := range ints {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, errors.New(name + " must be an integer")
		}
		*dst = n
	}
	if q.Get("adults") != "" && p.Adults < 1 {
		return p, errNoAdults
	}
	return p, nil
}

func searchHandler(s searcher, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := paramsFromQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		opts := search.Options{}
		opts.ForceAPI, _ = strconv.ParseBool(r.URL.Query().Get("force_api"))
		if h := r.URL.Query().Get("max_cache_age_hours"); h != "" {
			hours, err := strconv.ParseFloat(h, 64)
			if err != nil || hours <= 0 {
				http.Error(w, "max_cache_age_hours must be a positive number", http.StatusBadRequest)
				return
			}
			opts.MaxCacheAge = time.Duration(hours * float64(time.Hour))
		}

		res := s.SearchFlights(r.Context(), params, opts)
		status := http.StatusOK
		if !res.Success {
			status = statusFor(res.Error)
		}
		respondJSON(w, status, res, logger)
	}
}

func weekHandler(s searcher, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := paramsFromQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		start := r.URL.Query().Get("start_date")

		res := s.SearchWeekRange(r.Context(), params.DepartureID, params.ArrivalID, start, params)
		status := http.StatusOK
		if !res.Success {
			status = http.StatusBadGateway
			if len(res.DailyResults) == 0 {
				status = http.StatusBadRequest
			}
		}
		respondJSON(w, status, res, logger)
	}
}

func statusFor(e *search.Error) int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case search.ErrorValidation:
		return http.StatusBadRequest
	case search.ErrorRateLimited:
		return http.StatusTooManyRequests
	case search.ErrorTransport, search.ErrorApplication:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, v any, logger zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := writeJSON(w, v); err != nil {
		logger.Warn().Err(err).Msg("Failed to write response")
	}
}
