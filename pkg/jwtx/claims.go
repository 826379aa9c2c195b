// Package jwtx signs and verifies the Ed25519 access tokens crossgate issues
// once a login completes, and publishes the verification keys as a JWKS.
package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/crossgate-dev/crossgate/pkg/cryptox"
)

// DefaultAccessTokenTTL is the default access token lifetime. Short-lived on
// purpose; there is no refresh flow in this service.
const DefaultAccessTokenTTL = 15 * time.Minute

// Claims are the access-token claims. Additive changes only, to keep older
// verifiers working.
type Claims struct {
	jwt.RegisteredClaims

	// SID identifies the login session the token came from.
	SID string `json:"sid,omitempty"`

	// AMR lists how the user authenticated:
	//	"pwd": password
	//	"otp": time-based one-time password
	//	"qr":  cross-device QR approval
	AMR []string `json:"amr,omitempty"`

	// Username of the authenticated user.
	Username string `json:"username,omitempty"`
}

// NewAccessClaims builds minimally-correct claims for an access token.
func NewAccessClaims(subject, sid, username, issuer string, amr []string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        cryptox.MustGenerateToken(cryptox.TokenSize128),
		},
		SID:      sid,
		AMR:      amr,
		Username: username,
	}
}

// ValidateIssuer checks the issuer claim against the expected value. An empty
// expectation enforces nothing.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected != "" && c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateExpiry ensures the token is inside its validity window.
func (c *Claims) ValidateExpiry() error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}
