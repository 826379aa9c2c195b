package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/crossgate-dev/crossgate/internal/auth/domain"
	"github.com/crossgate-dev/crossgate/internal/auth/registry"
	"github.com/crossgate-dev/crossgate/internal/auth/service"
	"github.com/crossgate-dev/crossgate/pkg/authsdk"
	"github.com/crossgate-dev/crossgate/pkg/httpx"
	"github.com/crossgate-dev/crossgate/pkg/slogx"
	"github.com/crossgate-dev/crossgate/pkg/totp"
)

// LoginHandler handles the unauthenticated login endpoints.
type LoginHandler struct {
	LoginService *service.LoginService
}

// HandleLogin handles POST /v1/login
//
//	@Summary		Password login
//	@Description	Verifies primary credentials. Accounts with MFA enabled receive a challenge ID instead of tokens.
//	@Tags			Login
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse	"Tokens, or a pending MFA challenge"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid credentials"
//	@Failure		500		{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/login [post].
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "username and password are required")
		return
	}

	result, err := h.LoginService.PasswordLogin(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			httpx.WriteError(w, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials, "Invalid username or password")
			return
		}
		if errors.Is(err, registry.ErrUnavailable) {
			authsdk.ErrStoreUnavailable.WriteError(w)
			return
		}
		log.Error("failed to perform password login", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, loginResponse(result))
}

// HandleMFAVerify handles POST /v1/mfa/verify
//
//	@Summary		Answer a login MFA challenge
//	@Description	Completes a password or QR login that was held pending a TOTP code.
//	@Tags			Login
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFAVerifyRequest	true	"Challenge ID and TOTP code"
//	@Success		200		{object}	authsdk.TokenResponse		"Access token"
//	@Failure		400		{object}	authsdk.ErrorResponse		"Invalid code"
//	@Failure		404		{object}	authsdk.ErrorResponse		"Unknown or expired challenge"
//	@Failure		429		{object}	authsdk.ErrorResponse		"Attempt cap reached"
//	@Failure		500		{object}	authsdk.ErrorResponse		"Internal server error"
//	@Router			/v1/mfa/verify [post].
func (h *LoginHandler) HandleMFAVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.MFAVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "Invalid JSON body")
		return
	}

	tokens, err := h.LoginService.CompleteMFAChallenge(ctx, req.ChallengeID, req.Code)
	if err != nil {
		writeChallengeError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse(tokens))
}

// writeChallengeError maps challenge verification failures onto the error
// taxonomy shared by the login and MFA endpoints.
func writeChallengeError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrChallengeNotFound):
		httpx.WriteError(w, http.StatusNotFound, authsdk.ErrorCodeChallengeNotFound, "Challenge not found or expired")
	case errors.Is(err, totp.ErrInvalidCodeFormat):
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidCode, "Code must be exactly six digits")
	case errors.Is(err, service.ErrInvalidCode):
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidCode, "Invalid TOTP code")
	case errors.Is(err, service.ErrTooManyAttempts):
		httpx.WriteError(w, http.StatusTooManyRequests, authsdk.ErrorCodeTooManyAttempts, "Too many failed attempts; start over")
	case errors.Is(err, registry.ErrUnavailable):
		authsdk.ErrStoreUnavailable.WriteError(w)
	default:
		log.Error("failed to verify challenge", "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

func tokenResponse(t domain.TokenPair) *authsdk.TokenResponse {
	return &authsdk.TokenResponse{
		AccessToken: t.AccessToken,
		TokenType:   t.TokenType,
		ExpiresIn:   t.ExpiresIn,
	}
}

func loginResponse(result service.LoginResult) authsdk.LoginResponse {
	out := authsdk.LoginResponse{
		MFARequired: result.MFARequired,
		ChallengeID: result.ChallengeID,
	}
	if result.Tokens != nil {
		out.Token = tokenResponse(*result.Tokens)
	}
	return out
}
