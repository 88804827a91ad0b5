// Package testutil provides testing utilities for the App Store
// Connect client.
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAppStore is a configurable mock App Store Connect server.
type MockAppStore struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	RequestedPaths    []string
}

// NewMockAppStore creates a new mock server.
func NewMockAppStore() *MockAppStore {
	mock := &MockAppStore{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.RequestedPaths = append(mock.RequestedPaths, r.URL.RequestURI())
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAppStore) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAppStore) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAppStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.RequestedPaths = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAppStore) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockAppStore) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetResponseSequence configures a path to serve responses in order,
// repeating the last one once the sequence is exhausted.
func (m *MockAppStore) SetResponseSequence(path string, responses []MockResponse) {
	var mu sync.Mutex
	index := 0

	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[index]
		if index < len(responses)-1 {
			index++
		}
		mu.Unlock()

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAppStore) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetRequestedPaths returns the request URIs in arrival order.
func (m *MockAppStore) GetRequestedPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, len(m.RequestedPaths))
	copy(paths, m.RequestedPaths)
	return paths
}

// defaultHandler provides a default envelope response.
func (m *MockAppStore) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"data": [], "links": {"self": "` + r.URL.String() + `"}}`))
}

// NewEnvelopeResponse creates a 200 response wrapping data in the
// resource envelope, with an optional next link.
func NewEnvelopeResponse(data string, next string) MockResponse {
	body := fmt.Sprintf(`{"data": %s, "links": {"self": "mock"`, data)
	if next != "" {
		body += fmt.Sprintf(`, "next": %q`, next)
	}
	body += `}}`

	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
	}
}

// NewRateLimitResponse creates a 429 response with a Retry-After hint.
func NewRateLimitResponse(retryAfterSeconds int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errors": [{"status": "429", "code": "RATE_LIMIT_EXCEEDED", "title": "Rate limit exceeded"}]}`,
		Headers: map[string]string{
			"Retry-After": fmt.Sprintf("%d", retryAfterSeconds),
		},
	}
}

// NewServerErrorResponse creates a 500 response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errors": [{"status": "500", "code": "UNEXPECTED_ERROR", "title": "Internal server error"}]}`,
	}
}

// NewUnauthorizedResponse creates a 401 response.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"errors": [{"status": "401", "code": "NOT_AUTHORIZED", "title": "Authentication credentials are missing or invalid"}]}`,
	}
}

// GenerateTestKeyPEM generates a fresh P-256 private key encoded as a
// PKCS#8 PEM string, matching the format App Store Connect issues.
func GenerateTestKeyPEM(t *testing.T) string {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate test key: %v", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal test key: %v", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	}))
}

// TestEnv returns an environment lookup function over the given map.
func TestEnv(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}
