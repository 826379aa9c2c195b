package domain

import "time"

// MFAEnrollment is a user's TOTP enrollment as held by the credential store.
// The invariant is all-or-nothing: either enabled with a secret, or neither.
// A secret is never persisted before its owner has produced one valid code.
type MFAEnrollment struct {
	UserID  string
	Secret  string // base32, >=160 bits of entropy
	Enabled bool
}

// ChallengeKind distinguishes why an MFA challenge exists.
type ChallengeKind string

const (
	// ChallengeSetup holds a candidate secret during enrollment, before
	// anything touches the credential store.
	ChallengeSetup ChallengeKind = "setup"

	// ChallengeLogin is minted after a successful password login when the
	// account has MFA enabled.
	ChallengeLogin ChallengeKind = "login"

	// ChallengeQR is minted when a QR handshake completes with an
	// MFA-enabled snapshot.
	ChallengeQR ChallengeKind = "qr"
)

// ChallengeValidity bounds how long a pending MFA challenge may be answered.
const ChallengeValidity = 5 * time.Minute

// MaxChallengeAttempts caps failed code submissions per challenge.
const MaxChallengeAttempts = 5

// MFAChallenge is a short-lived, registry-backed record linking a pending
// second-factor step to the secret it must be answered with.
type MFAChallenge struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Kind      ChallengeKind `json:"kind"`
	Secret    string        `json:"secret"`
	Attempts  int           `json:"attempts"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Expired reports whether the challenge can no longer be answered at t.
func (c MFAChallenge) Expired(t time.Time) bool {
	return t.After(c.ExpiresAt)
}

// MFAEnrollResponse is returned by setup: the user transcribes the secret or
// scans the QR image, then proves possession with one current code.
type MFAEnrollResponse struct {
	ChallengeID string // answer ConfirmSetup with this
	Secret      string // base32 secret for manual entry
	URL         string // otpauth:// provisioning URL
	QRPNG       []byte // provisioning URL rendered as a QR image
}
