//go:build integration

package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}
	return client, cleanup
}

func TestRedisWindow_Integration_SharedQuota(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	cfg := Config{PerMinute: 3, PerHour: 10}

	// Two limiters with the same prefix stand in for two processes.
	a, err := NewRedisWindow(redisClient, cfg, "it:shared", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRedisWindow() error = %v", err)
	}
	b, err := NewRedisWindow(redisClient, cfg, "it:shared", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRedisWindow() error = %v", err)
	}

	_ = a.Record(ctx)
	_ = a.Record(ctx)
	_ = b.Record(ctx)

	for name, w := range map[string]*RedisWindow{"a": a, "b": b} {
		ok, err := w.CanProceed(ctx)
		if err != nil {
			t.Fatalf("%s.CanProceed() error = %v", name, err)
		}
		if ok {
			t.Errorf("%s.CanProceed() = true, want false after shared cap", name)
		}
	}

	other, _ := NewRedisWindow(redisClient, cfg, "it:other", zerolog.Nop())
	if ok, _ := other.CanProceed(ctx); !ok {
		t.Error("limiter with another prefix should not share the quota")
	}
}

func TestRedisWindow_Integration_AcquireIsAtomic(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	cfg := Config{PerMinute: 3, PerHour: 10}

	limiters := make([]*RedisWindow, 4)
	for i := range limiters {
		w, err := NewRedisWindow(redisClient, cfg, "it:atomic", zerolog.Nop())
		if err != nil {
			t.Fatalf("NewRedisWindow() error = %v", err)
		}
		limiters[i] = w
	}

	var wg sync.WaitGroup
	var admitted atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(w *RedisWindow) {
			defer wg.Done()
			ok, err := w.Acquire(ctx)
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			if ok {
				admitted.Add(1)
			}
		}(limiters[i%len(limiters)])
	}
	wg.Wait()

	if got := admitted.Load(); got != 3 {
		t.Errorf("admitted = %d, want 3", got)
	}
	st, err := limiters[0].State(ctx)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if st.MinuteCount != 3 {
		t.Errorf("MinuteCount = %d, want 3", st.MinuteCount)
	}
}
