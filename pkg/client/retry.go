package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry behavior.
var (
	ascRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asc_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	ascRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "asc_retry_backoff_seconds",
		Help:    "Backoff duration before retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	ascRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asc_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the retry policy for one transport.
type RetryConfig struct {
	// MaxAttempts is the total attempt cap, including the first request.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration

	// BackoffMultiplier is the growth factor per retry.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       4,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// backoffFor returns the jittered delay before the retry following the
// given attempt (1-based). Jitter is ±20% of the exponential base; the
// base doubles per attempt so successive delays stay strictly
// increasing despite the jitter.
func (c RetryConfig) backoffFor(attempt int) time.Duration {
	backoff := c.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * c.BackoffMultiplier)
		if backoff > c.MaxBackoff {
			backoff = c.MaxBackoff
			break
		}
	}
	return time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
}

// sleepBackoff waits out a retry delay, aborting on context
// cancellation.
func sleepBackoff(ctx context.Context, class ErrorClass, attempt int, delay time.Duration, logger zerolog.Logger) error {
	ascRetriesTotal.WithLabelValues(string(class)).Inc()
	ascRetryBackoffSeconds.WithLabelValues(string(class)).Observe(delay.Seconds())

	logger.Debug().
		Str("error_class", string(class)).
		Int("attempt", attempt).
		Dur("backoff", delay).
		Msg("Retrying request after backoff")

	select {
	case <-ctx.Done():
		logger.Warn().
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Msg("Context cancelled during retry backoff")
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	case <-time.After(delay):
		return nil
	}
}
