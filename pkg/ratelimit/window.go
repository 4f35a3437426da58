package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window is an in-process Limiter. Counters are per instance; use
// RedisWindow to share quotas between processes.
type Window struct {
	cfg Config

	mu     sync.Mutex
	minute []time.Time
	hour   []time.Time

	// Now is the clock. Tests replace it.
	Now func() time.Time
}

// NewWindow creates an in-memory sliding window limiter.
func NewWindow(cfg Config) (*Window, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Window{cfg: cfg, Now: time.Now}, nil
}

// CanProceed implements Limiter.
func (w *Window) CanProceed(ctx context.Context) (bool, error) {
	return w.State().Allowed(), nil
}

// Record implements Limiter.
func (w *Window) Record(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.Now()
	w.minute = append(w.minute, now)
	w.hour = append(w.hour, now)
	return nil
}

// Acquire implements Limiter.
func (w *Window) Acquire(ctx context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.Now()
	w.minute = prune(w.minute, now, MinuteWindow)
	w.hour = prune(w.hour, now, HourWindow)
	if len(w.minute) >= w.cfg.PerMinute || len(w.hour) >= w.cfg.PerHour {
		return false, nil
	}
	w.minute = append(w.minute, now)
	w.hour = append(w.hour, now)
	return true, nil
}

// Reset implements Limiter.
func (w *Window) Reset(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.minute = nil
	w.hour = nil
	return nil
}

// State returns a snapshot after discarding expired timestamps.
func (w *Window) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.Now()
	w.minute = prune(w.minute, now, MinuteWindow)
	w.hour = prune(w.hour, now, HourWindow)

	return State{
		MinuteCount: len(w.minute),
		HourCount:   len(w.hour),
		PerMinute:   w.cfg.PerMinute,
		PerHour:     w.cfg.PerHour,
		ObservedAt:  now,
	}
}

// prune keeps timestamps younger than window. Input is in insertion order.
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= window {
		i++
	}
	return ts[i:]
}
