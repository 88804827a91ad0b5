package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for budget gating.
var (
	ascBudgetRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "asc_rate_budget_remaining",
		Help: "Requests remaining in the current rate budget window",
	})

	ascBudgetBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "asc_rate_budget_blocks_total",
		Help: "Total requests rejected because the rate budget was exhausted or a cool-down was active",
	})

	ascCooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "asc_rate_cooldowns_total",
		Help: "Total server-imposed cool-downs recorded from 429 responses",
	})
)

// Budget is the shared request counter consumed by every outbound
// request. Acquisition is non-blocking: callers that cannot be
// admitted are told how long to wait and decide for themselves.
type Budget struct {
	capacity int
	window   time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	mu    sync.Mutex
	state BudgetState
}

// NewBudget creates a budget with the given capacity per window.
// Non-positive arguments fall back to the defaults.
func NewBudget(capacity int, window time.Duration, logger zerolog.Logger) *Budget {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if window <= 0 {
		window = DefaultWindow
	}

	b := &Budget{
		capacity: capacity,
		window:   window,
		logger:   logger,
		now:      time.Now,
	}
	b.state = BudgetState{
		Remaining:   capacity,
		WindowStart: b.now(),
	}
	return b
}

// TryAcquire consumes one unit if the budget admits a request now.
// When it does not, ok is false and retryAfter carries the wait until
// the next admission opportunity. The decrement happens before any
// request is sent so concurrent callers can never overdraw the budget.
func (b *Budget) TryAcquire() (retryAfter time.Duration, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if b.state.CooldownActive(now) {
		ascBudgetBlocksTotal.Inc()
		b.logger.Warn().
			Dur("retry_after", b.state.CooldownUntil.Sub(now)).
			Msg("Request blocked by server cool-down")
		return b.state.CooldownUntil.Sub(now), false
	}

	if b.state.WindowElapsed(b.window, now) {
		b.state.Remaining = b.capacity
		b.state.WindowStart = now
		b.state.CooldownUntil = time.Time{}
	}

	if b.state.Remaining <= 0 {
		wait := b.state.TimeUntilAvailable(b.window, now)
		ascBudgetBlocksTotal.Inc()
		b.logger.Warn().
			Dur("retry_after", wait).
			Msg("Request blocked: rate budget exhausted")
		return wait, false
	}

	b.state.Remaining--
	ascBudgetRemaining.Set(float64(b.state.Remaining))
	return 0, true
}

// ApplyCooldown records a server Retry-After hint. A cool-down only
// ever extends the current deadline; a shorter hint never shrinks one
// already in force.
func (b *Budget) ApplyCooldown(d time.Duration) {
	if d <= 0 {
		d = DefaultCooldown
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	until := b.now().Add(d)
	if until.After(b.state.CooldownUntil) {
		b.state.CooldownUntil = until
	}
	ascCooldownsTotal.Inc()

	b.logger.Warn().
		Time("cooldown_until", b.state.CooldownUntil).
		Msg("Server cool-down recorded")
}

// Remaining returns the units left in the current window.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Remaining
}

// Reset restores a full budget and clears any cool-down (for testing).
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BudgetState{
		Remaining:   b.capacity,
		WindowStart: b.now(),
	}
	ascBudgetRemaining.Set(float64(b.capacity))
}

// SetClock overrides the time source (for testing).
func (b *Budget) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}
