// Package ratelimit implements client-side throttling for the Lizard API.
// It combines a token bucket for steady request pacing with shared
// back-off state derived from HTTP 429 responses and their Retry-After header.
package ratelimit

import (
	"time"
)

// Redis keys for throttle state storage.
const (
	RedisKeyResetTimestamp = "lizard:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "lizard:rate_limit:last_update"
	RedisKeyThrottleCount  = "lizard:rate_limit:throttled_total"
)

// DefaultRetryAfter is the back-off applied to a 429 response without a usable
// Retry-After header.
const DefaultRetryAfter = 5 * time.Second

// MaxRetryAfter caps server supplied back-off values.
const MaxRetryAfter = 10 * time.Minute

// State represents the current throttle state.
// It is shared across all connectors using the same tracker or Redis.
type State struct {
	// ResetAt is when requests may resume. Zero when never throttled.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the state was last written.
	LastUpdate time.Time `json:"last_update"`

	// Throttled counts 429 responses recorded so far.
	Throttled int64 `json:"throttled"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsBlock returns true while the server asked us to back off.
func (s *State) NeedsBlock() bool {
	return time.Now().Before(s.ResetAt)
}

// TimeUntilReset returns the duration until requests may resume.
// Returns 0 if the reset time has already passed.
func (s *State) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}
