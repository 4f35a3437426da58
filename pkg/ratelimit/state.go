// Package ratelimit implements sliding-window admission control for search
// API calls with independent per-minute and per-hour caps.
//
// Limiters never sleep. Acquire admits and records a call in one step;
// CanProceed only reports whether a call would fit. The caller decides
// whether to reject or wait.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Window lengths.
const (
	MinuteWindow = time.Minute
	HourWindow   = time.Hour
)

// Redis key suffixes appended to the configured prefix.
const (
	RedisKeyMinuteSuffix = ":minute"
	RedisKeyHourSuffix   = ":hour"
)

// WarningRatio marks a window as near its cap once this share is used.
const WarningRatio = 0.8

// Limiter gates outbound API calls.
type Limiter interface {
	// CanProceed evaluates both windows after discarding expired entries.
	CanProceed(ctx context.Context) (bool, error)

	// Acquire checks both windows and records the call in one step. It
	// returns false without recording when either window is full.
	Acquire(ctx context.Context) (bool, error)

	// Record stores the current time in both windows.
	Record(ctx context.Context) error

	// Reset clears both windows.
	Reset(ctx context.Context) error
}

// Config holds the window caps.
type Config struct {
	PerMinute int
	PerHour   int
}

// DefaultConfig returns the provider's default caps.
func DefaultConfig() Config {
	return Config{
		PerMinute: 60,
		PerHour:   1000,
	}
}

// Validate checks that both caps are positive.
func (c Config) Validate() error {
	if c.PerMinute <= 0 {
		return fmt.Errorf("per-minute cap must be positive")
	}
	if c.PerHour <= 0 {
		return fmt.Errorf("per-hour cap must be positive")
	}
	return nil
}

// State is a snapshot of both windows.
type State struct {
	MinuteCount int       `json:"minute_count"`
	HourCount   int       `json:"hour_count"`
	PerMinute   int       `json:"per_minute"`
	PerHour     int       `json:"per_hour"`
	ObservedAt  time.Time `json:"observed_at"`
}

// Allowed reports whether another call fits in both windows.
func (s State) Allowed() bool {
	return s.MinuteCount < s.PerMinute && s.HourCount < s.PerHour
}

// RemainingMinute returns the calls left in the minute window.
func (s State) RemainingMinute() int {
	return max(s.PerMinute-s.MinuteCount, 0)
}

// RemainingHour returns the calls left in the hour window.
func (s State) RemainingHour() int {
	return max(s.PerHour-s.HourCount, 0)
}

// NearLimit reports whether either window has used WarningRatio of its cap.
func (s State) NearLimit() bool {
	return float64(s.MinuteCount) >= WarningRatio*float64(s.PerMinute) ||
		float64(s.HourCount) >= WarningRatio*float64(s.PerHour)
}
