// Package auth provides App Store Connect API credentials and signed
// access tokens for the client transport.
package auth

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Environment variables consulted by the resolver.
const (
	EnvKeyID    = "APP_STORE_CONNECT_API_KEY_ID"
	EnvIssuerID = "APP_STORE_CONNECT_ISSUER_ID"
	EnvKey      = "APP_STORE_CONNECT_API_KEY"
	EnvKeyPath  = "APP_STORE_CONNECT_API_KEY_PATH"
)

var (
	// ErrCredentialsNotConfigured indicates the required environment
	// variables are absent. Callers should treat App Store Connect
	// validation as disabled rather than failing the whole run.
	ErrCredentialsNotConfigured = errors.New("app store connect credentials not configured")

	// ErrCredentialsMalformed indicates key material was present but
	// could not be parsed as a PKCS#8 ECDSA private key.
	ErrCredentialsMalformed = errors.New("app store connect credentials malformed")
)

// Credentials holds the resolved App Store Connect API key.
// Immutable once loaded.
type Credentials struct {
	// KeyID is the API key identifier (the JWT "kid" header).
	KeyID string

	// IssuerID is the team issuer identifier (the JWT "iss" claim).
	IssuerID string

	// PrivateKey is the parsed P-256 signing key.
	PrivateKey *ecdsa.PrivateKey
}

// Resolver loads credentials from the environment once and caches them.
// It performs no network I/O.
type Resolver struct {
	mu     sync.Mutex
	lookup func(string) string
	creds  *Credentials
	logger zerolog.Logger
}

// NewResolver creates a resolver backed by os.Getenv.
func NewResolver(logger zerolog.Logger) *Resolver {
	return NewResolverWithLookup(os.Getenv, logger)
}

// NewResolverWithLookup creates a resolver with a custom environment
// lookup function (used by tests).
func NewResolverWithLookup(lookup func(string) string, logger zerolog.Logger) *Resolver {
	return &Resolver{
		lookup: lookup,
		logger: logger,
	}
}

// Resolve returns the cached credentials, loading them from the
// environment on first use.
func (r *Resolver) Resolve() (*Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked()
}

// resolveLocked loads and caches credentials. Caller holds r.mu.
func (r *Resolver) resolveLocked() (*Credentials, error) {
	if r.creds != nil {
		return r.creds, nil
	}

	keyID := r.lookup(EnvKeyID)
	issuerID := r.lookup(EnvIssuerID)
	if keyID == "" || issuerID == "" {
		return nil, fmt.Errorf("%w: %s and %s are required", ErrCredentialsNotConfigured, EnvKeyID, EnvIssuerID)
	}

	pemData, err := r.loadKeyMaterial()
	if err != nil {
		return nil, err
	}

	key, err := parsePrivateKey(pemData)
	if err != nil {
		return nil, err
	}

	r.creds = &Credentials{
		KeyID:      keyID,
		IssuerID:   issuerID,
		PrivateKey: key,
	}

	r.logger.Debug().
		Str("key_id", keyID).
		Msg("Resolved App Store Connect credentials")

	return r.creds, nil
}

// Reset clears the cached credentials. The next Resolve performs a
// fresh environment lookup. Used by tests and key-rotation flows.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds = nil
}

// loadKeyMaterial returns the PEM bytes, preferring the inline value
// over the key file path.
func (r *Resolver) loadKeyMaterial() (string, error) {
	if inline := r.lookup(EnvKey); inline != "" {
		return unescapeKey(inline), nil
	}

	path := r.lookup(EnvKeyPath)
	if path == "" {
		return "", fmt.Errorf("%w: neither %s nor %s is set", ErrCredentialsNotConfigured, EnvKey, EnvKeyPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read key file %s: %v", ErrCredentialsMalformed, path, err)
	}
	return string(data), nil
}

// unescapeKey converts literal backslash-n sequences to newlines.
// Keys passed through CI environment variables often arrive escaped.
func unescapeKey(key string) string {
	if strings.Contains(key, `\n`) {
		return strings.ReplaceAll(key, `\n`, "\n")
	}
	return key
}

// parsePrivateKey parses a PEM-encoded PKCS#8 ECDSA private key.
func parsePrivateKey(pemData string) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found in key material", ErrCredentialsMalformed)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse PKCS#8 key: %v", ErrCredentialsMalformed, err)
	}

	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: key is %T, want ECDSA", ErrCredentialsMalformed, parsed)
	}

	return key, nil
}
