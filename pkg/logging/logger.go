// Package logging configures zerolog for the flight search components.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer

	// Service is added as the "service" field when set.
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Output:  os.Stderr,
		Service: "flight-search",
	}
}

// New builds a logger from cfg without touching global state.
func New(cfg Config) zerolog.Logger {
	var out io.Writer = cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	ctx := zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	return ctx.Logger()
}

// Setup builds a logger with New and installs it as the global zerolog
// logger. Used by the command binaries only.
func Setup(cfg Config) zerolog.Logger {
	logger := New(cfg)
	log.Logger = logger
	return logger
}

// NewLogger derives a component logger from the global logger.
func NewLogger(component string) zerolog.Logger {
	return Component(log.Logger, component)
}

// Component derives a logger tagged with the component name.
func Component(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Log Level Guidelines:
//
// Debug: cache key and lookup flow, individual API attempts, skipped segments
// Info: API fetches, cache hits, stored searches, prune results, server startup
// Warn: retries, rate limit rejections, referential skips, inbound fallback failures
// Error: exhausted retries, structured storage failures, configuration errors
//
// Context Fields:
//   - search_id: provider search identifier
//   - cache_key: hex digest of the normalized parameters
//   - route: "DEP-ARR"
//   - outbound_date / return_date
//   - attempt: 1-based HTTP attempt number
//   - error_class: client, server, rate_limit, network, application
//   - status_code: HTTP status code
//   - duration: request duration
