// Package ratelimit implements the shared request budget gating all
// outbound App Store Connect calls. The budget refills on a rolling
// window; a server-supplied cool-down overrides normal refill until it
// passes.
package ratelimit

import (
	"time"
)

// Default budget parameters. App Store Connect enforces per-hour
// quotas; the defaults keep a scan comfortably inside them.
const (
	// DefaultCapacity is the number of requests allowed per window.
	DefaultCapacity = 50

	// DefaultWindow is the rolling window length.
	DefaultWindow = time.Minute

	// DefaultCooldown is applied when a 429 response carries no
	// Retry-After header.
	DefaultCooldown = 60 * time.Second
)

// BudgetState is the current budget snapshot. All fields are managed
// by Budget; the type exists so the arithmetic stays independently
// testable.
type BudgetState struct {
	// Remaining is the number of requests left in the current window.
	Remaining int

	// WindowStart is when the current window began.
	WindowStart time.Time

	// CooldownUntil is the server-imposed wait deadline. Zero when no
	// cool-down is active.
	CooldownUntil time.Time
}

// CooldownActive reports whether a server cool-down is still in force.
func (s *BudgetState) CooldownActive(now time.Time) bool {
	return !s.CooldownUntil.IsZero() && now.Before(s.CooldownUntil)
}

// WindowElapsed reports whether the rolling window has passed and the
// budget may refill.
func (s *BudgetState) WindowElapsed(window time.Duration, now time.Time) bool {
	return !now.Before(s.WindowStart.Add(window))
}

// TimeUntilAvailable returns how long a caller must wait before a
// request could be admitted: the cool-down remainder if one is active,
// otherwise the time until the window refills. Returns 0 when a
// request would be admitted now.
func (s *BudgetState) TimeUntilAvailable(window time.Duration, now time.Time) time.Duration {
	if s.CooldownActive(now) {
		return s.CooldownUntil.Sub(now)
	}
	if s.Remaining > 0 || s.WindowElapsed(window, now) {
		return 0
	}
	return s.WindowStart.Add(window).Sub(now)
}
