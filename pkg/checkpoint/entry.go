package checkpoint

import (
	"time"
)

// DefaultTTL is how long an unused checkpoint is kept.
const DefaultTTL = 24 * time.Hour

// Checkpoint is the resumable state of an interrupted download.
type Checkpoint struct {
	// Endpoint is the registry name of the resource
	Endpoint string `json:"endpoint"`

	// NextURL is the page to request when resuming
	NextURL string `json:"next_url"`

	// Pages and Records count what was delivered before the interruption
	Pages   int `json:"pages"`
	Records int `json:"records"`
	Skipped int `json:"skipped"`

	// RequestID of the download that saved the checkpoint
	RequestID string `json:"request_id,omitempty"`

	// LastError describes the failure that interrupted the download
	LastError string `json:"last_error,omitempty"`

	SavedAt time.Time `json:"saved_at"`
	Expires time.Time `json:"expires"`
}

// IsExpired returns true if the checkpoint has expired.
func (c *Checkpoint) IsExpired() bool {
	return !c.Expires.IsZero() && time.Now().After(c.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (c *Checkpoint) TTL() time.Duration {
	ttl := time.Until(c.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// stamp sets SavedAt and renews Expires.
func (c *Checkpoint) stamp(ttl time.Duration) {
	c.SavedAt = time.Now().UTC()
	c.Expires = c.SavedAt.Add(ttl)
}
