// Package sessionx issues and verifies the signed session tokens that
// identify a logged-in account across requests.
package sessionx

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("sessionx: invalid token")
	ErrExpiredToken = errors.New("sessionx: token expired")
)

// CookieName is the cookie the session token travels in for browser
// clients. API clients may send the same token as a bearer credential.
const CookieName = "commune_session"

// Claims carried by a session token. Subject holds the account id.
type Claims struct {
	jwt.RegisteredClaims

	IsAdmin      bool   `json:"adm,omitempty"`
	IsAmbassador bool   `json:"amb,omitempty"`
	City         string `json:"city,omitempty"`
}

// Manager signs and verifies session tokens with a shared HS256 secret.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	secure bool
}

func NewManager(secret []byte, issuer string, ttl time.Duration, secure bool) (*Manager, error) {
	if len(secret) < 32 {
		return nil, errors.New("sessionx: secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Manager{secret: secret, issuer: issuer, ttl: ttl, secure: secure}, nil
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue creates a signed session token for the given account.
func (m *Manager) Issue(userID string, isAdmin, isAmbassador bool, city string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		IsAdmin:      isAdmin,
		IsAmbassador: isAmbassador,
		City:         city,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token, returning its claims.
func (m *Manager) Verify(raw string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// SetCookie writes the session cookie on a response.
func (m *Manager) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
