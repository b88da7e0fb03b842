package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidVerification reports a bad or expired email verification
// token.
var ErrInvalidVerification = errors.New("invalid verification token")

// VerificationTokens issues the signed, short-lived tokens embedded in
// email verification links.
type VerificationTokens struct {
	Secret []byte
	TTL    time.Duration
}

type verificationClaims struct {
	jwt.RegisteredClaims

	Address string `json:"adr"`
	Purpose string `json:"pur"`
}

const verificationPurpose = "email_verify"

// Issue creates a token binding userID to one of their addresses.
func (v *VerificationTokens) Issue(userID, address string) (string, error) {
	ttl := v.TTL
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	now := time.Now().UTC()
	claims := verificationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Address: address,
		Purpose: verificationPurpose,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.Secret)
	if err != nil {
		return "", fmt.Errorf("sign verification token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns the bound user id and address.
func (v *VerificationTokens) Parse(raw string) (userID, address string, err error) {
	var claims verificationClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.Secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", "", ErrInvalidVerification
	}
	if claims.Purpose != verificationPurpose || claims.Subject == "" || claims.Address == "" {
		return "", "", ErrInvalidVerification
	}
	return claims.Subject, claims.Address, nil
}
