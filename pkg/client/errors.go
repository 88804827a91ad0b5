package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Common errors returned by the client.
var (
	// ErrAuthFailed is returned when the service rejects the bearer
	// token (401 or 403). Never retried: resending the same token
	// cannot succeed.
	ErrAuthFailed = errors.New("authentication rejected by app store connect")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled
	// during retry backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassAuth represents 401/403 responses.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassClient represents other 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses and local budget
	// exhaustion.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// RateLimitError is returned when the rate budget is exhausted, a
// server cool-down is in force, or 429 responses outlasted the attempt
// cap. RetryAfter is the wait the caller should observe before trying
// again.
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter.Round(time.Second))
}

// APIError represents a well-formed rejection from the service,
// carrying the structured error payload for surfacing to the user.
type APIError struct {
	StatusCode int
	Errors     []ErrorDetail
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("app store connect error (status %d)", e.StatusCode)
	}
	details := make([]string, len(e.Errors))
	for i, d := range e.Errors {
		details[i] = d.String()
	}
	return fmt.Sprintf("app store connect error (status %d): %s", e.StatusCode, strings.Join(details, "; "))
}

// classifyStatus maps an HTTP status to an error class. A nil-response
// network failure is classified separately by the caller.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorClassAuth
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry reports whether an error class earns another attempt.
// Only server-acknowledged transient conditions do; auth and client
// rejections fail immediately.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassServer, ErrorClassNetwork, ErrorClassRateLimit:
		return true
	default:
		return false
	}
}
