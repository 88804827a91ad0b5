package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for token issuance.
var (
	ascTokenRefreshesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "asc_token_refreshes_total",
		Help: "Total number of App Store Connect tokens signed",
	})
)

// Token lifetime parameters. App Store Connect rejects tokens valid
// for more than 20 minutes; we stay well under that ceiling.
const (
	// TokenValidity is the lifetime of each signed token.
	TokenValidity = 15 * time.Minute

	// TokenRefreshThreshold is the remaining lifetime below which a
	// cached token is proactively replaced.
	TokenRefreshThreshold = TokenValidity / 5

	// tokenAudience is required by the App Store Connect API.
	tokenAudience = "appstoreconnect-v1"
)

// ErrSigningFailed indicates the JWT could not be signed with the
// resolved private key.
var ErrSigningFailed = errors.New("token signing failed")

// Issuer produces and caches short-lived ES256 tokens derived from the
// resolver's credentials. Safe for concurrent use; two callers racing
// an expiring token observe exactly one resign.
type Issuer struct {
	resolver *Resolver
	logger   zerolog.Logger
	now      func() time.Time

	mu sync.Mutex
	// token and expiresAt are cached together and only ever replaced
	// as a pair under mu.
	token     string
	expiresAt time.Time
}

// NewIssuer creates a token issuer backed by the given resolver.
func NewIssuer(resolver *Resolver, logger zerolog.Logger) *Issuer {
	return &Issuer{
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// GetValidToken returns a cached token if its remaining lifetime is
// above the refresh threshold, otherwise signs a new one.
func (i *Issuer) GetValidToken() (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.token != "" && i.now().Before(i.expiresAt.Add(-TokenRefreshThreshold)) {
		return i.token, nil
	}

	creds, err := i.resolver.Resolve()
	if err != nil {
		return "", err
	}

	now := i.now()
	expiresAt := now.Add(TokenValidity)

	claims := jwt.MapClaims{
		"iss": creds.IssuerID,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
		"aud": tokenAudience,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["kid"] = creds.KeyID

	signed, err := tok.SignedString(creds.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	i.token = signed
	i.expiresAt = expiresAt
	ascTokenRefreshesTotal.Inc()

	i.logger.Debug().
		Time("expires_at", expiresAt).
		Msg("Signed new App Store Connect token")

	return signed, nil
}

// Reset clears both the token cache and the underlying credential
// cache. Holding i.mu across the resolver reset keeps the two caches
// consistent for concurrent callers.
func (i *Issuer) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.token = ""
	i.expiresAt = time.Time{}
	i.resolver.Reset()
}

// SetClock overrides the time source (for testing).
func (i *Issuer) SetClock(now func() time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.now = now
}
