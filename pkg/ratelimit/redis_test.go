package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestNewRedisWindow_Validation(t *testing.T) {
	if _, err := NewRedisWindow(nil, DefaultConfig(), "", zerolog.Nop()); err == nil {
		t.Error("NewRedisWindow() should require a client")
	}

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()
	if _, err := NewRedisWindow(client, Config{}, "", zerolog.Nop()); err == nil {
		t.Error("NewRedisWindow() should reject zero caps")
	}
}

func TestRedisWindow_SlidingWindow(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	w, err := NewRedisWindow(client, Config{PerMinute: 2, PerHour: 3}, "test:ratelimit", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRedisWindow() error = %v", err)
	}
	clock := &fakeClock{now: time.Now()}
	w.Now = clock.Now

	for i := 0; i < 2; i++ {
		if err := w.Record(ctx); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if ok, err := w.CanProceed(ctx); err != nil || ok {
		t.Errorf("CanProceed() = %v, %v; want false, nil", ok, err)
	}

	clock.Advance(time.Minute)
	if ok, _ := w.CanProceed(ctx); !ok {
		t.Error("minute window should have expired")
	}

	_ = w.Record(ctx)
	if ok, _ := w.CanProceed(ctx); ok {
		t.Error("hour cap of 3 should reject")
	}

	if err := w.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	st, err := w.State(ctx)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if st.MinuteCount != 0 || st.HourCount != 0 {
		t.Errorf("State() after reset = %d/%d, want 0/0", st.MinuteCount, st.HourCount)
	}
}

func TestRedisWindow_Acquire(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	w, err := NewRedisWindow(client, Config{PerMinute: 2, PerHour: 10}, "test:acquire", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRedisWindow() error = %v", err)
	}
	clock := &fakeClock{now: time.Now()}
	w.Now = clock.Now

	for i := 0; i < 2; i++ {
		if ok, err := w.Acquire(ctx); err != nil || !ok {
			t.Fatalf("Acquire() call %d = %v, %v; want true, nil", i+1, ok, err)
		}
	}
	if ok, err := w.Acquire(ctx); err != nil || ok {
		t.Errorf("Acquire() = %v, %v; want false, nil", ok, err)
	}
	st, err := w.State(ctx)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if st.MinuteCount != 2 || st.HourCount != 2 {
		t.Errorf("State() = %d/%d, want 2/2 (rejected calls are not recorded)", st.MinuteCount, st.HourCount)
	}

	clock.Advance(time.Minute)
	if ok, _ := w.Acquire(ctx); !ok {
		t.Error("Acquire() should succeed once the minute window expires")
	}
}
