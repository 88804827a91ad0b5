// Package cache provides an optional redis-backed cache for App Store
// Connect GET responses. A cache hit returns the stored envelope
// without consuming rate budget or touching the network.
package cache

import (
	"time"
)

// Entry is one cached response envelope.
type Entry struct {
	// Body is the raw response envelope bytes.
	Body []byte `json:"body"`

	// StatusCode is the HTTP status of the cached response.
	StatusCode int `json:"status_code"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	// CachedAt is when the entry was stored.
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry creates an entry that expires after ttl.
func NewEntry(body []byte, statusCode int, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Body:       body,
		StatusCode: statusCode,
		Expires:    now.Add(ttl),
		CachedAt:   now,
	}
}

// IsExpired returns true if the entry has passed its expiry.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiry, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
