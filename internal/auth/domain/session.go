package domain

import "time"

// SessionStatus is the lifecycle state of a cross-device login session.
// A deleted record is the implicit fourth state: closed.
type SessionStatus string

const (
	SessionPending  SessionStatus = "pending"
	SessionApproved SessionStatus = "approved"
	SessionRejected SessionStatus = "rejected"
)

// SessionValidity is how long a QR login session may sit pending before it
// becomes inert. Whichever party first reads an expired record deletes it.
const SessionValidity = 5 * time.Minute

// LoginSession is the shared record a QR handshake revolves around. The
// unauthenticated device creates it, the authenticated device transitions it,
// and the registry delivers the transition back to the creator.
type LoginSession struct {
	SessionID        string        `json:"session_id"`
	Status           SessionStatus `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	ExpiresAt        time.Time     `json:"expires_at"`
	ApprovedByUserID string        `json:"approved_by_user_id,omitempty"`
	MFASnapshot      *MFASnapshot  `json:"mfa_snapshot,omitempty"`
}

// Expired reports whether the session's validity window has passed at t.
func (s LoginSession) Expired(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// MFASnapshot is a copy of the approver's MFA enrollment taken at approval
// time. The new device has no session with the credential store yet, so the
// snapshot travels with the approval.
type MFASnapshot struct {
	Enabled bool   `json:"enabled"`
	Secret  string `json:"secret,omitempty"`
}

// HandshakeOutcome is the terminal state the coordinator surfaces to its
// caller, exactly once per session.
type HandshakeOutcome string

const (
	OutcomeApproved  HandshakeOutcome = "approved"
	OutcomeRejected  HandshakeOutcome = "rejected"
	OutcomeExpired   HandshakeOutcome = "expired"
	OutcomeCancelled HandshakeOutcome = "cancelled"
)

// HandshakeResult is what Wait returns once the session reaches a terminal
// state. Approver identity and snapshot are set only for OutcomeApproved.
type HandshakeResult struct {
	SessionID        string
	Outcome          HandshakeOutcome
	ApprovedByUserID string
	MFASnapshot      *MFASnapshot
}
