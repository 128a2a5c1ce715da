package exante

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
)

// tokenTTL is the lifetime of an issued access token. The API rejects tokens
// older than this, so a fresh one is signed once the window is exceeded.
const tokenTTL = 3600 * time.Second

// tokenScopes is the fixed audience list granted to every issued token.
var tokenScopes = []string{
	"symbols", "ohlc", "feed", "change", "crossrates",
	"orders", "accounts", "summary", "transactions",
}

// TokenManager issues and caches the short-lived signed token used to
// authenticate against the market-data API. Signing is local, no network
// involved. An issued token is immutable; renewal replaces it wholesale.
type TokenManager struct {
	clientID string
	appID    string
	key      []byte

	mu       sync.Mutex
	value    string
	issuedAt time.Time

	now func() time.Time
}

// NewTokenManager creates a token manager for one issuing credential.
func NewTokenManager(clientID, appID, sharedKey string) *TokenManager {
	return &TokenManager{
		clientID: clientID,
		appID:    appID,
		key:      []byte(sharedKey),
		now:      time.Now,
	}
}

// Token returns the current access token, signing a fresh one when the held
// token is absent or has reached its lifetime. Safe for concurrent use; a
// signing failure propagates and never replaces the held token.
func (m *TokenManager) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.value != "" && now.Sub(m.issuedAt) < tokenTTL {
		return m.value, nil
	}

	claims := jwt.MapClaims{
		"iss": m.clientID,
		"sub": m.appID,
		"aud": tokenScopes,
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	m.value = signed
	m.issuedAt = now
	return signed, nil
}
