package domain

import "time"

// User is the account record the credential store keeps alongside MFA
// enrollments. Crossgate does not hold password material; password checks
// are delegated to the identity provider boundary.
type User struct {
	ID            string
	Username      string
	PreferredName string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TokenPair is what a completed login yields.
type TokenPair struct {
	AccessToken string
	TokenType   string // always "Bearer"
	ExpiresIn   int64  // seconds
}
