package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for throttling.
var (
	throttleResponsesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lizard_throttle_responses_total",
		Help: "Total number of HTTP 429 responses recorded",
	})

	throttleWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lizard_throttle_waits_total",
		Help: "Total number of requests delayed by a server requested back-off",
	})

	throttleWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lizard_throttle_wait_seconds",
		Help:    "Time spent waiting before a request could be sent",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 120},
	})
)

// extendReset stores ARGV[1] as the reset timestamp only when it is later
// than the stored one, so a short Retry-After never cuts a longer back-off.
var extendReset = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if tonumber(ARGV[1]) > current then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
	return 1
end
return 0
`)

// Config holds tracker configuration.
type Config struct {
	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64

	// Burst is the token bucket size (minimum 1).
	Burst int

	// DefaultRetryAfter applies when a 429 carries no Retry-After header.
	DefaultRetryAfter time.Duration
}

// DefaultConfig returns a conservative configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		Burst:             5,
		DefaultRetryAfter: DefaultRetryAfter,
	}
}

// Tracker gates outgoing requests.
// With a Redis client the back-off state is shared between processes,
// otherwise it lives in memory.
type Tracker struct {
	redis   *redis.Client
	limiter *rate.Limiter
	config  Config
	logger  zerolog.Logger

	mu    sync.Mutex
	local State
}

// NewTracker creates a new tracker. redisClient may be nil.
func NewTracker(redisClient *redis.Client, cfg Config, logger zerolog.Logger) *Tracker {
	if cfg.DefaultRetryAfter <= 0 {
		cfg.DefaultRetryAfter = DefaultRetryAfter
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}

	return &Tracker{
		redis:   redisClient,
		limiter: limiter,
		config:  cfg,
		logger:  logger,
	}
}

// GetState returns the current throttle state.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		s := t.local
		return &s, nil
	}

	resetMillis, err := t.redis.Get(ctx, RedisKeyResetTimestamp).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	throttled, err := t.redis.Get(ctx, RedisKeyThrottleCount).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get throttle count: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	state := &State{Throttled: throttled}
	if resetMillis > 0 {
		state.ResetAt = time.UnixMilli(resetMillis)
	}
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &state.LastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	return state, nil
}

// UpdateFromResponse records a throttling response. Responses other than
// HTTP 429 leave the state untouched.
func (t *Tracker) UpdateFromResponse(ctx context.Context, statusCode int, headers http.Header) error {
	if statusCode != http.StatusTooManyRequests {
		return nil
	}

	wait := ParseRetryAfter(headers.Get("Retry-After"), time.Now())
	if wait <= 0 {
		wait = t.config.DefaultRetryAfter
	}
	if wait > MaxRetryAfter {
		wait = MaxRetryAfter
	}

	now := time.Now()
	resetAt := now.Add(wait)
	throttleResponsesTotal.Inc()

	if t.redis == nil {
		t.mu.Lock()
		if resetAt.After(t.local.ResetAt) {
			t.local.ResetAt = resetAt
		}
		t.local.LastUpdate = now
		t.local.Throttled++
		t.mu.Unlock()
	} else {
		lastUpdateJSON, err := json.Marshal(now)
		if err != nil {
			return fmt.Errorf("marshal last update: %w", err)
		}

		pipe := t.redis.Pipeline()
		extendReset.Eval(ctx, pipe, []string{RedisKeyResetTimestamp}, resetAt.UnixMilli(), max(wait.Milliseconds(), 1))
		pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)
		pipe.Incr(ctx, RedisKeyThrottleCount)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("store throttle state in redis: %w", err)
		}
	}

	t.logger.Warn().
		Dur("retry_after", wait).
		Time("reset_at", resetAt).
		Msg("Lizard API throttled the client")

	return nil
}

// Wait blocks until a request may be sent: first any server requested
// back-off, then the token bucket. It returns early with ctx.Err() when the
// context is done.
func (t *Tracker) Wait(ctx context.Context) error {
	start := time.Now()

	state, err := t.GetState(ctx)
	if err != nil {
		// Throttle state is advisory; pacing still applies.
		t.logger.Warn().Err(err).Msg("Failed to read throttle state")
	} else if state.NeedsBlock() {
		wait := state.TimeUntilReset()
		throttleWaitsTotal.Inc()

		t.logger.Debug().
			Dur("wait_duration", wait).
			Msg("Waiting for server back-off to expire")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	throttleWaitSeconds.Observe(time.Since(start).Seconds())
	return nil
}

// ParseRetryAfter interprets a Retry-After header value given in seconds or as
// an HTTP date. It returns 0 when the value is missing or unusable.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
