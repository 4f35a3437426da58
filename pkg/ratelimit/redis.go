package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// acquireScript trims both windows, checks the caps and records the call
// atomically, so concurrent processes cannot overshoot the shared quota.
//
// KEYS: minute, hour. ARGV: minute cutoff, hour cutoff, per-minute cap,
// per-hour cap, score, member, minute ttl ms, hour ttl ms.
// Returns {admitted, minute count, hour count} with counts after admission.
var acquireScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
redis.call('ZREMRANGEBYSCORE', KEYS[2], '-inf', ARGV[2])
local m = redis.call('ZCARD', KEYS[1])
local h = redis.call('ZCARD', KEYS[2])
if m >= tonumber(ARGV[3]) or h >= tonumber(ARGV[4]) then
  return {0, m, h}
end
redis.call('ZADD', KEYS[1], ARGV[5], ARGV[6])
redis.call('ZADD', KEYS[2], ARGV[5], ARGV[6])
redis.call('PEXPIRE', KEYS[1], ARGV[7])
redis.call('PEXPIRE', KEYS[2], ARGV[8])
return {1, m + 1, h + 1}
`)

// RedisWindow is a Limiter backed by two Redis sorted sets so that several
// processes share one quota. Members are unique ids scored by unix
// microseconds. Acquire is atomic across processes; CanProceed followed by
// Record is not.
type RedisWindow struct {
	redis     *redis.Client
	cfg       Config
	minuteKey string
	hourKey   string
	logger    zerolog.Logger

	// Now is the clock. Tests replace it.
	Now func() time.Time
}

// NewRedisWindow creates a Redis-backed limiter using keys derived from prefix.
func NewRedisWindow(redisClient *redis.Client, cfg Config, prefix string, logger zerolog.Logger) (*RedisWindow, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "flight-search:ratelimit"
	}
	return &RedisWindow{
		redis:     redisClient,
		cfg:       cfg,
		minuteKey: prefix + RedisKeyMinuteSuffix,
		hourKey:   prefix + RedisKeyHourSuffix,
		logger:    logger,
		Now:       time.Now,
	}, nil
}

// CanProceed implements Limiter.
func (w *RedisWindow) CanProceed(ctx context.Context) (bool, error) {
	state, err := w.State(ctx)
	if err != nil {
		return false, err
	}
	if state.NearLimit() && state.Allowed() {
		w.logger.Warn().
			Int("minute_remaining", state.RemainingMinute()).
			Int("hour_remaining", state.RemainingHour()).
			Msg("Search API quota nearly used")
	}
	return state.Allowed(), nil
}

// Acquire implements Limiter.
func (w *RedisWindow) Acquire(ctx context.Context) (bool, error) {
	now := w.Now()
	res, err := acquireScript.Run(ctx, w.redis,
		[]string{w.minuteKey, w.hourKey},
		score(now.Add(-MinuteWindow)),
		score(now.Add(-HourWindow)),
		w.cfg.PerMinute,
		w.cfg.PerHour,
		now.UnixMicro(),
		uuid.NewString(),
		(MinuteWindow + time.Minute).Milliseconds(),
		(HourWindow + time.Minute).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("acquire rate limit slot: %w", err)
	}
	if len(res) != 3 {
		return false, fmt.Errorf("acquire rate limit slot: unexpected reply %v", res)
	}

	state := State{
		MinuteCount: int(res[1]),
		HourCount:   int(res[2]),
		PerMinute:   w.cfg.PerMinute,
		PerHour:     w.cfg.PerHour,
		ObservedAt:  now,
	}
	if res[0] == 1 && state.NearLimit() {
		w.logger.Warn().
			Int("minute_remaining", state.RemainingMinute()).
			Int("hour_remaining", state.RemainingHour()).
			Msg("Search API quota nearly used")
	}
	return res[0] == 1, nil
}

// State removes expired members and counts what is left in each window.
func (w *RedisWindow) State(ctx context.Context) (State, error) {
	now := w.Now()

	pipe := w.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, w.minuteKey, "-inf", score(now.Add(-MinuteWindow)))
	pipe.ZRemRangeByScore(ctx, w.hourKey, "-inf", score(now.Add(-HourWindow)))
	minute := pipe.ZCard(ctx, w.minuteKey)
	hour := pipe.ZCard(ctx, w.hourKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return State{}, fmt.Errorf("read rate limit windows: %w", err)
	}

	return State{
		MinuteCount: int(minute.Val()),
		HourCount:   int(hour.Val()),
		PerMinute:   w.cfg.PerMinute,
		PerHour:     w.cfg.PerHour,
		ObservedAt:  now,
	}, nil
}

// Record implements Limiter.
func (w *RedisWindow) Record(ctx context.Context) error {
	now := w.Now()
	member := redis.Z{Score: float64(now.UnixMicro()), Member: uuid.NewString()}

	pipe := w.redis.TxPipeline()
	pipe.ZAdd(ctx, w.minuteKey, member)
	pipe.ZAdd(ctx, w.hourKey, member)
	pipe.Expire(ctx, w.minuteKey, MinuteWindow+time.Minute)
	pipe.Expire(ctx, w.hourKey, HourWindow+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record rate limit call: %w", err)
	}
	return nil
}

// Reset implements Limiter.
func (w *RedisWindow) Reset(ctx context.Context) error {
	if err := w.redis.Del(ctx, w.minuteKey, w.hourKey).Err(); err != nil {
		return fmt.Errorf("reset rate limit windows: %w", err)
	}
	w.logger.Info().Msg("Rate limit windows reset")
	return nil
}

// score formats t as an inclusive ZRANGEBYSCORE bound.
func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}
