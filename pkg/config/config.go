// Package config loads runtime settings from an optional .env file, an
// optional TOML file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Duration wraps time.Duration for TOML text values like "15m".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Config holds all runtime settings.
type Config struct {
	API       APIConfig       `toml:"api"`
	Cache     CacheConfig     `toml:"cache"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Storage   StorageConfig   `toml:"storage"`
	Search    SearchConfig    `toml:"search"`
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
}

type APIConfig struct {
	Key        string   `toml:"key"`
	BaseURL    string   `toml:"base_url"`
	Engine     string   `toml:"engine"`
	Timeout    Duration `toml:"timeout"`
	MaxRetries int      `toml:"max_retries"`
	RetryDelay Duration `toml:"retry_delay"`
}

type CacheConfig struct {
	TTLHours      int      `toml:"ttl_hours"`
	PruneInterval Duration `toml:"prune_interval"`
}

// TTL returns the cache freshness window.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

type RateLimitConfig struct {
	Enabled   bool   `toml:"enabled"`
	PerMinute int    `toml:"per_minute"`
	PerHour   int    `toml:"per_hour"`
	RedisURL  string `toml:"redis_url"`
	RedisKey  string `toml:"redis_key"`
}

type StorageConfig struct {
	DBPath             string `toml:"db_path"`
	AutoCreateAirports bool   `toml:"auto_create_airports"`
	RawRetentionDays   int    `toml:"raw_retention_days"`
}

type SearchConfig struct {
	// DefaultReturnOffsetDays generates a return date this many days after
	// the outbound date when none is given. Zero disables it.
	DefaultReturnOffsetDays int  `toml:"default_return_offset_days"`
	ValidateDateHorizon     bool `toml:"validate_date_horizon"`
	MaxDaysAhead            int  `toml:"max_days_ahead"`
	MaxPassengers           int  `toml:"max_passengers"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:    "https://serpapi.com/search",
			Engine:     "google_flights",
			Timeout:    Duration{30 * time.Second},
			MaxRetries: 3,
			RetryDelay: Duration{time.Second},
		},
		Cache: CacheConfig{
			TTLHours:      24,
			PruneInterval: Duration{15 * time.Minute},
		},
		RateLimit: RateLimitConfig{
			Enabled:   true,
			PerMinute: 60,
			PerHour:   1000,
			RedisKey:  "flight-search:ratelimit",
		},
		Storage: StorageConfig{
			DBPath: "flight_data.db",
		},
		Search: SearchConfig{
			ValidateDateHorizon: true,
			MaxDaysAhead:        365,
			MaxPassengers:       9,
		},
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// Load builds the configuration. A missing .env or config file is not an
// error; an unreadable or malformed one is.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("unmarshaling config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	c.API.Key = getEnv("SERPAPI_KEY", c.API.Key)
	c.API.BaseURL = getEnv("SERPAPI_BASE_URL", c.API.BaseURL)
	c.API.Timeout.Duration = getEnvAsDuration("HTTP_TIMEOUT", c.API.Timeout.Duration, &errs)
	c.API.MaxRetries = getEnvAsInt("MAX_RETRIES", c.API.MaxRetries, &errs)
	c.API.RetryDelay.Duration = getEnvAsDuration("RETRY_BASE_DELAY", c.API.RetryDelay.Duration, &errs)

	c.Cache.TTLHours = getEnvAsInt("CACHE_TTL_HOURS", c.Cache.TTLHours, &errs)
	c.Cache.PruneInterval.Duration = getEnvAsDuration("PRUNE_INTERVAL", c.Cache.PruneInterval.Duration, &errs)

	c.RateLimit.Enabled = getEnvAsBool("RATE_LIMIT_ENABLED", c.RateLimit.Enabled, &errs)
	c.RateLimit.PerMinute = getEnvAsInt("RATE_LIMIT_PER_MINUTE", c.RateLimit.PerMinute, &errs)
	c.RateLimit.PerHour = getEnvAsInt("RATE_LIMIT_PER_HOUR", c.RateLimit.PerHour, &errs)
	c.RateLimit.RedisURL = getEnv("REDIS_URL", c.RateLimit.RedisURL)

	c.Storage.DBPath = getEnv("DB_PATH", c.Storage.DBPath)
	c.Storage.AutoCreateAirports = getEnvAsBool("AUTO_CREATE_AIRPORTS", c.Storage.AutoCreateAirports, &errs)
	c.Storage.RawRetentionDays = getEnvAsInt("RAW_RETENTION_DAYS", c.Storage.RawRetentionDays, &errs)

	c.Search.DefaultReturnOffsetDays = getEnvAsInt("DEFAULT_RETURN_OFFSET_DAYS", c.Search.DefaultReturnOffsetDays, &errs)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Pretty = getEnvAsBool("LOG_PRETTY", c.Log.Pretty, &errs)
	c.Server.ListenAddr = getEnv("LISTEN_ADDR", c.Server.ListenAddr)

	return errors.Join(errs...)
}

// Validate checks value ranges. The API key is checked by the client, so
// offline commands like prune work without one.
func (c *Config) Validate() error {
	var problems []string
	if c.API.BaseURL == "" {
		problems = append(problems, "api.base_url must not be empty")
	}
	if c.API.MaxRetries < 0 {
		problems = append(problems, "api.max_retries must be >= 0")
	}
	if c.API.Timeout.Duration <= 0 {
		problems = append(problems, "api.timeout must be > 0")
	}
	if c.Cache.TTLHours <= 0 {
		problems = append(problems, "cache.ttl_hours must be > 0")
	}
	if c.RateLimit.Enabled && (c.RateLimit.PerMinute <= 0 || c.RateLimit.PerHour <= 0) {
		problems = append(problems, "rate_limit caps must be > 0 when enabled")
	}
	if c.Storage.RawRetentionDays < 0 {
		problems = append(problems, "storage.raw_retention_days must be >= 0")
	}
	if c.Search.DefaultReturnOffsetDays < 0 {
		problems = append(problems, "search.default_return_offset_days must be >= 0")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int, errs *[]error) int {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid integer %q", key, s))
		return fallback
	}
	return v
}

func getEnvAsBool(key string, fallback bool, errs *[]error) bool {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid boolean %q", key, s))
		return fallback
	}
	return v
}

func getEnvAsDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, s))
		return fallback
	}
	return v
}
