package client

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/flight-search-cache/pkg/metrics"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the first one.
	MaxRetries int

	// BaseDelay is the backoff before the first retry. Each further retry
	// doubles it.
	BaseDelay time.Duration

	// MaxDelay caps a single backoff. Zero means no cap.
	MaxDelay time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Backoff returns the delay after the zero-based attempt failed:
// BaseDelay * 2^attempt, capped at MaxDelay.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	d := c.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if c.MaxDelay > 0 && d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// attemptFunc performs one attempt. attempt is zero-based. A nil error ends
// the loop; otherwise the class decides whether to retry.
type attemptFunc func(attempt int) (ErrorClass, error)

// retryWithBackoff runs fn until it succeeds, returns a non-transient error,
// or MaxRetries+1 attempts have been made. Every attempt increments the
// attempt counter. It returns the number of attempts made.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, m *metrics.Metrics, logger zerolog.Logger, fn attemptFunc) (int, error) {
	maxAttempts := cfg.MaxRetries + 1

	var lastErr error
	var lastClass ErrorClass

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		m.APIAttempts.Inc()
		class, err := fn(attempt)
		if err == nil {
			if attempt > 0 {
				logger.Info().
					Int("attempt", attempt+1).
					Msg("Search request succeeded after retry")
			}
			return attempt + 1, nil
		}

		lastErr, lastClass = err, class

		if !shouldRetry(class) {
			return attempt + 1, err
		}

		if attempt+1 >= maxAttempts {
			break
		}

		delay := cfg.Backoff(attempt)
		m.RetryBackoff.WithLabelValues(string(class)).Observe(delay.Seconds())

		logger.Warn().
			Err(err).
			Str("error_class", string(class)).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Retrying search request after backoff")

		select {
		case <-ctx.Done():
			logger.Warn().
				Str("error_class", string(class)).
				Int("attempt", attempt+1).
				Msg("Context cancelled during retry backoff")
			return attempt + 1, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(delay):
		}
	}

	logger.Error().
		Err(lastErr).
		Str("error_class", string(lastClass)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return maxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}
