// Package client provides the core App Store Connect HTTP transport
// with bearer authentication, rate budget enforcement, retries, and
// optional response caching.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/ahmetsina/ios-app-review-plugin-sub000/pkg/auth"
	"github.com/ahmetsina/ios-app-review-plugin-sub000/pkg/cache"
	"github.com/ahmetsina/ios-app-review-plugin-sub000/pkg/logging"
	"github.com/ahmetsina/ios-app-review-plugin-sub000/pkg/ratelimit"
)

// DefaultBaseURL is the App Store Connect API endpoint.
const DefaultBaseURL = "https://api.appstoreconnect.apple.com"

// Prometheus metrics for request handling.
var (
	ascRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asc_requests_total",
		Help: "Total App Store Connect requests by endpoint and outcome",
	}, []string{"endpoint", "status"})

	ascRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "asc_request_duration_seconds",
		Help:    "App Store Connect request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	ascErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asc_errors_total",
		Help: "Total App Store Connect errors by class",
	}, []string{"class"})
)

// Client is the rate-limited App Store Connect transport.
type Client struct {
	httpClient *http.Client
	issuer     *auth.Issuer
	budget     *ratelimit.Budget
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the App Store Connect API.
	BaseURL string

	// Issuer supplies signed bearer tokens (required).
	Issuer *auth.Issuer

	// Budget gates outbound requests. A default budget is created
	// when nil.
	Budget *ratelimit.Budget

	// Cache is the optional redis-backed response cache for GETs.
	Cache *cache.Manager

	// CacheTTL is how long GET responses stay cached.
	CacheTTL time.Duration

	// Timeout bounds each individual HTTP call.
	Timeout time.Duration

	// UserAgent identifies the tool to the service.
	UserAgent string

	// Retry is the backoff policy for transient failures.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(issuer *auth.Issuer) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Issuer:    issuer,
		CacheTTL:  5 * time.Minute,
		Timeout:   30 * time.Second,
		UserAgent: "ios-app-review-plugin/1.0",
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new App Store Connect client.
func New(cfg Config) (*Client, error) {
	if cfg.Issuer == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	logger := logging.NewLogger("asc-client")

	budget := cfg.Budget
	if budget == nil {
		budget = ratelimit.NewBudget(ratelimit.DefaultCapacity, ratelimit.DefaultWindow, logger)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		issuer: cfg.Issuer,
		budget: budget,
		cache:  cfg.Cache,
		config: cfg,
		logger: logger,
	}, nil
}

// Send performs one logical request: budget check, bearer token,
// HTTP exchange, classification, and bounded retries for transient
// failures. The path may be relative to the base URL or an absolute
// URL (pagination cursors arrive absolute).
func (c *Client) Send(ctx context.Context, method, path string, body any) (*Response, error) {
	target, err := c.resolveURL(path)
	if err != nil {
		return nil, err
	}
	endpoint := target.Path

	startTime := time.Now()
	defer func() {
		ascRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Cache hits bypass both the budget and the network.
	cacheKey := cache.Key{Path: target.Path, Query: target.Query()}
	if method == http.MethodGet && c.cache != nil {
		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
		if entry != nil {
			ascRequestsTotal.WithLabelValues(endpoint, "cache_hit").Inc()
			return decodeResponse(entry.Body)
		}
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	var lastErr error
	var lastClass ErrorClass

	for attempt := 1; attempt <= c.config.Retry.MaxAttempts; attempt++ {
		// Step 1: the budget never blocks; exhaustion fails fast and
		// leaves waiting decisions to the caller.
		wait, ok := c.budget.TryAcquire()
		if !ok {
			ascRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			ascErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
			return nil, &RateLimitError{RetryAfter: wait}
		}

		// Step 2: a valid bearer token, refreshed transparently.
		token, err := c.issuer.GetValidToken()
		if err != nil {
			return nil, err
		}

		resp, err := c.doRequest(ctx, method, target.String(), token, payload)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			}

			lastErr = fmt.Errorf("http request: %w", err)
			lastClass = ErrorClassNetwork
			ascErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			ascRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Int("attempt", attempt).
				Msg("Request failed at network level")

			if attempt < c.config.Retry.MaxAttempts {
				if err := sleepBackoff(ctx, ErrorClassNetwork, attempt, c.config.Retry.backoffFor(attempt), c.logger); err != nil {
					return nil, err
				}
				continue
			}
			break
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response body: %w", readErr)
			lastClass = ErrorClassNetwork
			if attempt < c.config.Retry.MaxAttempts {
				if err := sleepBackoff(ctx, ErrorClassNetwork, attempt, c.config.Retry.backoffFor(attempt), c.logger); err != nil {
					return nil, err
				}
				continue
			}
			break
		}

		status := resp.StatusCode
		class := classifyStatus(status)
		ascRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()

		switch class {
		case "":
			// 2xx: decode and return.
			decoded, err := decodeResponse(respBody)
			if err != nil {
				return nil, err
			}
			if method == http.MethodGet && c.cache != nil && status == http.StatusOK {
				entry := cache.NewEntry(respBody, status, c.config.CacheTTL)
				if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
					c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to cache response")
				}
			}
			return decoded, nil

		case ErrorClassRateLimit:
			retryAfter := parseRetryAfter(resp.Header)
			c.budget.ApplyCooldown(retryAfter)
			ascErrorsTotal.WithLabelValues(string(class)).Inc()
			c.logger.Warn().
				Str("endpoint", endpoint).
				Dur("retry_after", retryAfter).
				Msg("Server rate limit response")

			lastErr = &RateLimitError{RetryAfter: retryAfter}
			lastClass = class
			if attempt < c.config.Retry.MaxAttempts {
				// Loop back to the budget check; the recorded
				// cool-down fails the next attempt fast unless it
				// has already passed.
				continue
			}
			return nil, lastErr

		case ErrorClassAuth:
			ascErrorsTotal.WithLabelValues(string(class)).Inc()
			c.logger.Error().
				Str("endpoint", endpoint).
				Int("status", status).
				Msg("Authentication rejected")
			return nil, fmt.Errorf("%w (status %d)", ErrAuthFailed, status)

		case ErrorClassClient:
			ascErrorsTotal.WithLabelValues(string(class)).Inc()
			return nil, apiErrorFrom(status, respBody)

		case ErrorClassServer:
			ascErrorsTotal.WithLabelValues(string(class)).Inc()
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", status).
				Int("attempt", attempt).
				Msg("Server error response")

			lastErr = apiErrorFrom(status, respBody)
			lastClass = class
			if attempt < c.config.Retry.MaxAttempts {
				if err := sleepBackoff(ctx, class, attempt, c.config.Retry.backoffFor(attempt), c.logger); err != nil {
					return nil, err
				}
				continue
			}
		}
		break
	}

	ascRetryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	c.logger.Error().
		Str("endpoint", endpoint).
		Int("max_attempts", c.config.Retry.MaxAttempts).
		Err(lastErr).
		Msg("Retry attempts exhausted")

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, c.config.Retry.MaxAttempts, lastErr)
}

// Get performs a GET request against an API path.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Send(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Send(ctx, http.MethodPost, path, body)
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Send(ctx, http.MethodPatch, path, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Send(ctx, http.MethodDelete, path, nil)
}

// Budget returns the shared rate budget (for callers that want to
// inspect remaining capacity before scheduling work).
func (c *Client) Budget() *ratelimit.Budget {
	return c.budget
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// doRequest builds and executes one HTTP exchange.
func (c *Client) doRequest(ctx context.Context, method, target, token string, payload []byte) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// resolveURL joins a relative API path with the base URL; absolute
// URLs pass through untouched.
func (c *Client) resolveURL(path string) (*url.URL, error) {
	raw := path
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = c.config.BaseURL + path
	}
	target, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse request url %q: %w", path, err)
	}
	return target, nil
}

// parseRetryAfter extracts the cool-down hint from a 429 response,
// falling back to the default when absent or unparseable.
func parseRetryAfter(headers http.Header) time.Duration {
	value := headers.Get("Retry-After")
	if value == "" {
		return ratelimit.DefaultCooldown
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return ratelimit.DefaultCooldown
	}
	return time.Duration(seconds) * time.Second
}

// apiErrorFrom builds an APIError from a rejection body, tolerating
// bodies that are not valid envelopes.
func apiErrorFrom(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var envelope Response
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.Errors = envelope.Errors
	}
	return apiErr
}
