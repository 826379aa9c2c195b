package authsdk

import (
	"time"

	"github.com/crossgate-dev/crossgate/pkg/jwtx"
)

// ErrorResponse is the standard error body every endpoint returns on failure.
type ErrorResponse struct {
	// Error is the machine-readable error code (e.g. "invalid_code")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// TokenResponse is returned whenever a login flow completes.
type TokenResponse struct {
	// AccessToken is the JWT access token used to authenticate API requests
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int64 `json:"expires_in"`
}

// LoginRequest is the body of POST /v1/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the outcome of a password login. When the account has MFA
// enabled no tokens are issued: MFARequired is true and ChallengeID names the
// pending second factor, answered via POST /v1/mfa/verify.
type LoginResponse struct {
	MFARequired bool           `json:"mfa_required"`
	ChallengeID string         `json:"challenge_id,omitempty"`
	Token       *TokenResponse `json:"token,omitempty"`
}

// MFAVerifyRequest is the body of POST /v1/mfa/verify: a TOTP code answering
// an outstanding login challenge.
type MFAVerifyRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

// TOTPEnrollRequest is the (empty) body of POST /v1/mfa/totp/enroll. Kept as
// a named type so the endpoint can grow fields without breaking callers.
type TOTPEnrollRequest struct{}

// TOTPEnrollResponse carries the freshly minted TOTP secret. Nothing is
// persisted until the user proves possession via POST /v1/mfa/totp/verify
// with the returned challenge ID.
type TOTPEnrollResponse struct {
	// ChallengeID identifies the pending setup, answered by TOTPConfirmRequest
	ChallengeID string `json:"challenge_id"`

	// Secret is the base32 TOTP secret for manual entry
	Secret string `json:"secret"`

	// URL is the otpauth:// provisioning URL
	URL string `json:"url"`

	// QRPNG is the provisioning URL rendered as a PNG QR code (base64 in JSON)
	QRPNG []byte `json:"qr_png"`
}

// TOTPConfirmRequest is the body of POST /v1/mfa/totp/verify.
type TOTPConfirmRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

// TOTPDisableRequest is the body of DELETE /v1/mfa/totp. Disabling MFA
// requires one current code.
type TOTPDisableRequest struct {
	Code string `json:"code"`
}

// QRStartResponse is returned by POST /v1/qr/start: a pending login session
// and the payload the authenticated device will scan.
type QRStartResponse struct {
	SessionID string    `json:"session_id"`
	Payload   string    `json:"payload"`
	QRPNG     []byte    `json:"qr_png"`
	ExpiresAt time.Time `json:"expires_at"`
}

// QRWaitResponse is the terminal outcome of a handshake, delivered once by
// GET /v1/qr/{session_id}/wait. Token is set only for an approved session
// whose approver has no MFA; with MFA enabled the new device gets a
// challenge instead, answered via POST /v1/mfa/verify.
type QRWaitResponse struct {
	SessionID   string         `json:"session_id"`
	Outcome     string         `json:"outcome"` // approved, rejected, expired or cancelled
	MFARequired bool           `json:"mfa_required,omitempty"`
	ChallengeID string         `json:"challenge_id,omitempty"`
	Token       *TokenResponse `json:"token,omitempty"`
}

// QRApprovalRequest is the body of POST /v1/qr/approve and /v1/qr/reject:
// the raw payload the authenticated device scanned.
type QRApprovalRequest struct {
	Payload string `json:"payload"`
}

// HealthChecks reports per-dependency status inside a HealthResponse.
type HealthChecks struct {
	Database string `json:"database,omitempty"`
	Registry string `json:"registry,omitempty"`
	Signer   string `json:"signer,omitempty"`
}

// HealthResponse is returned by the /livez and /readyz probes.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// JWKSResponse is the JSON Web Key Set exposed at /.well-known/jwks.json.
type JWKSResponse = jwtx.JWKS
