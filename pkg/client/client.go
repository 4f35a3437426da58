// Package client provides the search API client with validation, rate
// limiting, bounded retries and raw payload capture.
package client

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/flight-search-cache/pkg/flight"
	"github.com/Sternrassler/flight-search-cache/pkg/metrics"
	"github.com/Sternrassler/flight-search-cache/pkg/ratelimit"
)

// RawSink persists raw response bodies and returns the record id.
type RawSink interface {
	InsertRaw(ctx context.Context, rec flight.RawRecord) (int64, error)
}

// Client is the search API client.
type Client struct {
	httpClient *http.Client
	config     Config
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// APIKey is sent as api_key (REQUIRED).
	APIKey string

	// BaseURL defaults to https://serpapi.com/search.
	BaseURL string

	// Engine defaults to google_flights.
	Engine string

	// Timeout bounds one HTTP attempt. A timeout is a transient error.
	Timeout time.Duration

	Retry      RetryConfig
	Validation ValidationRules

	// Limiter gates calls when set.
	Limiter ratelimit.Limiter

	// RawSink receives every response body when set.
	RawSink RawSink

	// Metrics defaults to a private instance.
	Metrics *metrics.Metrics

	// Logger defaults to the global logger.
	Logger *zerolog.Logger

	// HTTPClient overrides the default HTTP client (for testing).
	HTTPClient *http.Client

	// Now is the clock used for validation and search ids.
	Now func() time.Time
}

// DefaultConfig returns a configuration with provider defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:     apiKey,
		BaseURL:    "https://serpapi.com/search",
		Engine:     "google_flights",
		Timeout:    30 * time.Second,
		Retry:      DefaultRetryConfig(),
		Validation: DefaultValidationRules(),
	}
}

// New creates a new search API client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.Engine == "" {
		cfg.Engine = "google_flights"
	}
	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.Retry.MaxRetries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(nil)
	}

	logger := log.With().Str("component", "search-client").Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "search-client").Logger()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		metrics:    cfg.Metrics,
		logger:     logger,
	}, nil
}

// FetchResult is a successful provider response.
type FetchResult struct {
	SearchID   string
	RequestID  string
	Parameters flight.SearchParameters
	Response   *flight.Response
	Raw        []byte
	RawID      *int64
	StatusCode int
	Attempts   int
	FetchedAt  time.Time
}

// Validate applies defaults and the configured validation rules.
func (c *Client) Validate(params flight.SearchParameters) error {
	return c.config.Validation.Validate(params.WithDefaults(), c.config.Now())
}

// SearchID returns "search_<yyyymmdd_hhmmss>_<hash>" for params at t.
func SearchID(params flight.SearchParameters, t time.Time) string {
	data, _ := json.Marshal(params)
	sum := md5.Sum(data)
	return fmt.Sprintf("search_%s_%s", t.Format("20060102_150405"), hex.EncodeToString(sum[:])[:12])
}

// Fetch validates params, checks the rate limiter and performs the search
// with bounded retries.
//
// Errors: *ValidationError, ErrRateLimited, *ApplicationError, a
// *TransportError for non-transient HTTP failures, ErrRetryExhausted
// wrapping the last *TransportError, or ErrContextCancelled.
func (c *Client) Fetch(ctx context.Context, params flight.SearchParameters) (*FetchResult, error) {
	params = params.WithDefaults()
	now := c.config.Now()

	if err := c.config.Validation.Validate(params, now); err != nil {
		c.logger.Warn().Err(err).Str("route", params.Route()).Msg("Rejected invalid search parameters")
		return nil, err
	}

	if c.config.Limiter != nil {
		allowed, err := c.config.Limiter.Acquire(ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("Rate limit check failed")
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			c.metrics.RateLimitBlocks.Inc()
			c.logger.Warn().Str("route", params.Route()).Msg("Search blocked by rate limiter")
			return nil, ErrRateLimited
		}
	}

	result := &FetchResult{
		SearchID:   SearchID(params, now),
		RequestID:  uuid.NewString(),
		Parameters: params,
	}
	logger := c.logger.With().
		Str("search_id", result.SearchID).
		Str("request_id", result.RequestID).
		Str("route", params.Route()).
		Logger()

	requestURL := c.config.BaseURL + "?" + BuildQuery(params, c.config.Engine, c.config.APIKey).Encode()

	attempts, err := retryWithBackoff(ctx, c.config.Retry, c.metrics, logger, func(attempt int) (ErrorClass, error) {
		return c.attempt(ctx, requestURL, result, logger)
	})
	result.Attempts = attempts

	if err != nil {
		class := ClassOf(err)
		if class == "" {
			class = ErrorClassNetwork
		}
		c.metrics.APIFailures.WithLabelValues(string(class)).Inc()
		if !errors.Is(err, ErrRetryExhausted) {
			logger.Error().Err(err).Str("error_class", string(class)).Int("attempts", attempts).Msg("Search request failed")
		}
		return nil, err
	}

	c.metrics.APICalls.Inc()
	logger.Info().
		Int("flights", result.Response.FlightCount()).
		Int("attempts", attempts).
		Msg("Search request completed")

	return result, nil
}

// attempt performs a single HTTP request and fills result on success.
func (c *Client) attempt(ctx context.Context, requestURL string, result *FetchResult, logger zerolog.Logger) (ErrorClass, error) {
	start := time.Now()
	defer func() {
		c.metrics.RequestDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return ErrorClassClient, &TransportError{ErrorClass: ErrorClassClient, Message: "create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug().Err(err).Msg("HTTP request failed")
		return ErrorClassNetwork, &TransportError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ErrorClassNetwork, &TransportError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Message: "read body", Err: err}
	}

	result.RawID = c.recordRaw(ctx, result, resp.StatusCode, body, logger)

	if class := classifyStatus(resp.StatusCode); class != "" {
		logger.Debug().
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Search API returned error status")
		return class, &TransportError{StatusCode: resp.StatusCode, ErrorClass: class, Message: resp.Status}
	}

	var decoded flight.Response
	if err := json.Unmarshal(body, &decoded); err != nil {
		return ErrorClassApplication, &ApplicationError{SearchID: result.SearchID, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if decoded.Error != "" {
		return ErrorClassApplication, &ApplicationError{SearchID: result.SearchID, Message: decoded.Error}
	}

	result.Response = &decoded
	result.Raw = body
	result.StatusCode = resp.StatusCode
	result.FetchedAt = c.config.Now()
	return "", nil
}

func (c *Client) recordRaw(ctx context.Context, result *FetchResult, status int, body []byte, logger zerolog.Logger) *int64 {
	if c.config.RawSink == nil {
		return nil
	}
	id, err := c.config.RawSink.InsertRaw(ctx, flight.RawRecord{
		SearchID:   result.SearchID,
		RequestID:  result.RequestID,
		Parameters: result.Parameters,
		StatusCode: status,
		Body:       body,
		FetchedAt:  c.config.Now(),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to persist raw response")
		return nil
	}
	return &id
}

// classifyStatus returns "" for 2xx statuses.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	case status >= 400:
		return ErrorClassClient
	case status < 200 || status >= 300:
		return ErrorClassServer
	default:
		return ""
	}
}
