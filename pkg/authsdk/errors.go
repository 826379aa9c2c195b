package authsdk

import (
	"fmt"
	"net/http"

	"github.com/crossgate-dev/crossgate/pkg/httpx"
)

// Error codes the API can return.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeInvalidToken       = "invalid_token"
	ErrorCodeInvalidCode        = "invalid_code"
	ErrorCodeTooManyAttempts    = "too_many_attempts"
	ErrorCodeChallengeNotFound  = "challenge_not_found"
	ErrorCodeMFAAlreadyEnabled  = "mfa_already_enabled"
	ErrorCodeMFANotEnabled      = "mfa_not_enabled"
	ErrorCodeMalformedPayload   = "malformed_payload"
	ErrorCodeSessionNotFound    = "session_not_found"
	ErrorCodeSessionNotPending  = "session_not_pending"
	ErrorCodeSessionExpired     = "session_expired"
	ErrorCodeStoreUnavailable   = "store_unavailable"
	ErrorCodeRateLimitExceeded  = "rate_limit_exceeded"
	ErrorCodeServerError        = "server_error"
)

// APIError is a structured error from the crossgate API. It is used by the
// server to write error responses and by the SDK client to surface them.
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the machine-readable error code (e.g. "session_expired")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteError(w, e.StatusCode, e.Code, e.Description)
}

// Predefined errors shared by several handlers.
var (
	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "Invalid or missing access token",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "An internal server error occurred",
	}

	ErrStoreUnavailable = &APIError{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodeStoreUnavailable,
		Description: "A backing store is unreachable; retry later",
	}
)
