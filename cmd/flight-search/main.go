package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/Sternrassler/flight-search-cache/internal/app"
	"github.com/Sternrassler/flight-search-cache/pkg/config"
	"github.com/Sternrassler/flight-search-cache/pkg/logging"
)

func main() {
	cmd := &cli.Command{
		Name:  "flight-search",
		Usage: "Cache-first flight search with structured storage",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "TOML configuration file (environment variables override it)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			searchCommand(),
			weekCommand(),
			pruneCommand(),
			serveCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withApp loads configuration, builds the application and runs fn with it.
func withApp(ctx context.Context, c *cli.Command, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.Log.Level)
	logCfg.Pretty = cfg.Log.Pretty
	if c.Bool("debug") {
		logCfg.Level = logging.LevelDebug
	}
	logger := logging.Setup(logCfg)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
