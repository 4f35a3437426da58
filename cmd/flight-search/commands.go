package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/Sternrassler/flight-search-cache/internal/app"
	"github.com/Sternrassler/flight-search-cache/pkg/flight"
	"github.com/Sternrassler/flight-search-cache/pkg/search"
)

func passengerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "from", Usage: "Departure airport (IATA)", Required: true},
		&cli.StringFlag{Name: "to", Usage: "Arrival airport (IATA)", Required: true},
		&cli.IntFlag{Name: "adults", Value: 1},
		&cli.IntFlag{Name: "children"},
		&cli.IntFlag{Name: "infants-in-seat"},
		&cli.IntFlag{Name: "infants-on-lap"},
		&cli.IntFlag{Name: "class", Usage: "1 economy, 2 premium economy, 3 business, 4 first", Value: flight.ClassEconomy},
		&cli.StringFlag{Name: "currency", Value: "USD"},
	}
}

// errNoAdults rejects an explicit adult count of zero, which
// SearchParameters.WithDefaults would otherwise treat as unset.
var errNoAdults = errors.New("adults must be at least 1")

func paramsFromFlags(c *cli.Command) (flight.SearchParameters, error) {
	if c.Int("adults") < 1 {
		return flight.SearchParameters{}, errNoAdults
	}
	return flight.SearchParameters{
		DepartureID:   c.String("from"),
		ArrivalID:     c.String("to"),
		Adults:        c.Int("adults"),
		Children:      c.Int("children"),
		InfantsInSeat: c.Int("infants-in-seat"),
		InfantsOnLap:  c.Int("infants-on-lap"),
		TravelClass:   c.Int("class"),
		Currency:      c.String("currency"),
	}, nil
}

func searchCommand() *cli.Command {
	flags := append(passengerFlags(),
		&cli.StringFlag{Name: "date", Usage: "Outbound date (YYYY-MM-DD, DD-MM or DD-MM-YYYY)", Required: true},
		&cli.StringFlag{Name: "return", Usage: "Return date for round trips"},
		&cli.BoolFlag{Name: "force-api", Usage: "Skip the cache"},
		&cli.DurationFlag{Name: "max-age", Usage: "Maximum cache age (default from config)"},
	)

	return &cli.Command{
		Name:  "search",
		Usage: "Search flights, serving from cache when fresh",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			params, err := paramsFromFlags(c)
			if err != nil {
				return err
			}
			today := time.Now()

			date, err := parseCLIDate(c.String("date"), today)
			if err != nil {
				return err
			}
			params.OutboundDate = date
			if ret := c.String("return"); ret != "" {
				if params.ReturnDate, err = parseCLIDate(ret, today); err != nil {
					return err
				}
			}

			return withApp(ctx, c, func(ctx context.Context, a *app.App) error {
				orch, err := a.RequireSearch()
				if err != nil {
					return err
				}
				res := orch.SearchFlights(ctx, params, search.Options{
					ForceAPI:    c.Bool("force-api"),
					MaxCacheAge: c.Duration("max-age"),
				})
				if err := writeJSON(os.Stdout, res); err != nil {
					return err
				}
				if !res.Success {
					return res.Error
				}
				return nil
			})
		},
	}
}

func weekCommand() *cli.Command {
	flags := append(passengerFlags(),
		&cli.StringFlag{Name: "start", Usage: "First day of the week range", Required: true},
		&cli.IntFlag{Name: "trip-days", Usage: "Search round trips of this length (0 = one way)"},
	)

	return &cli.Command{
		Name:  "week",
		Usage: "Search seven consecutive days and aggregate prices",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			params, err := paramsFromFlags(c)
			if err != nil {
				return err
			}
			start, err := parseCLIDate(c.String("start"), time.Now())
			if err != nil {
				return err
			}
			if days := c.Int("trip-days"); days > 0 {
				startDate, _ := time.Parse(flight.DateLayout, start)
				params.OutboundDate = start
				params.ReturnDate = startDate.AddDate(0, 0, days).Format(flight.DateLayout)
			}

			return withApp(ctx, c, func(ctx context.Context, a *app.App) error {
				orch, err := a.RequireSearch()
				if err != nil {
					return err
				}
				res := orch.SearchWeekRange(ctx, params.DepartureID, params.ArrivalID, start, params)
				if err := writeJSON(os.Stdout, res); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("week search: %s", res.Error)
				}
				return nil
			})
		},
	}
}

func pruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete expired searches and raw responses past retention",
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, c, func(ctx context.Context, a *app.App) error {
				s, err := a.Prune(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Pruned %d searches older than %s and %d raw responses\n",
					s.Searches.SearchesPruned, s.Searches.Cutoff.Format(time.RFC3339), s.RawPruned)
				return nil
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
