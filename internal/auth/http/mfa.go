package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crossgate-dev/crossgate/internal/auth/service"
	"github.com/crossgate-dev/crossgate/pkg/authsdk"
	"github.com/crossgate-dev/crossgate/pkg/httpx"
	"github.com/crossgate-dev/crossgate/pkg/slogx"
)

// MFAHandler handles TOTP enrollment management for authenticated users.
type MFAHandler struct {
	MFAService *service.MFAService
}

// HandleEnroll handles POST /v1/mfa/totp/enroll
//
//	@Summary		Begin TOTP enrollment
//	@Description	Mints a TOTP secret for the authenticated user and returns it with a provisioning QR code.
//	@Description	Nothing is persisted until the setup challenge is answered with one current code.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TOTPEnrollResponse	"Secret, provisioning URL and setup challenge"
//	@Failure		400	{object}	authsdk.ErrorResponse		"MFA already enabled"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Invalid or missing access token"
//	@Failure		500	{object}	authsdk.ErrorResponse		"Internal server error"
//	@Router			/v1/mfa/totp/enroll [post].
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	// Get user ID from context (injected by AuthnMiddleware)
	userID, ok := ctx.Value(httpx.CtxKeyUserID).(string)
	if !ok || userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	enrollment, err := h.MFAService.BeginSetup(ctx, userID)
	if err != nil {
		if errors.Is(err, service.ErrMFAAlreadyEnabled) {
			log.Warn("MFA already enabled", "user_id", userID)
			httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeMFAAlreadyEnabled, "MFA is already enabled for this user")
			return
		}
		log.Error("failed to begin TOTP setup", "user_id", userID, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TOTPEnrollResponse{
		ChallengeID: enrollment.ChallengeID,
		Secret:      enrollment.Secret,
		URL:         enrollment.URL,
		QRPNG:       enrollment.QRPNG,
	})
}

// HandleConfirm handles POST /v1/mfa/totp/verify
//
//	@Summary		Confirm TOTP enrollment
//	@Description	Proves possession of the enrolling secret with one current code and enables MFA.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.TOTPConfirmRequest	true	"Setup challenge ID and TOTP code"
//	@Success		204		"MFA enabled"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid code"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Failure		404		{object}	authsdk.ErrorResponse	"Unknown or expired challenge"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Attempt cap reached"
//	@Router			/v1/mfa/totp/verify [post].
func (h *MFAHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := ctx.Value(httpx.CtxKeyUserID).(string)
	if !ok || userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.TOTPConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "Invalid JSON body")
		return
	}

	if err := h.MFAService.ConfirmSetup(ctx, userID, req.ChallengeID, req.Code); err != nil {
		if errors.Is(err, service.ErrMFAAlreadyEnabled) {
			httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeMFAAlreadyEnabled, "MFA is already enabled for this user")
			return
		}
		writeChallengeError(w, log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleDisable handles DELETE /v1/mfa/totp
//
//	@Summary		Disable MFA
//	@Description	Removes the TOTP enrollment. Requires one current code as proof of possession.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.TOTPDisableRequest	true	"Current TOTP code"
//	@Success		204		"MFA disabled"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid code or MFA not enabled"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Router			/v1/mfa/totp [delete].
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := ctx.Value(httpx.CtxKeyUserID).(string)
	if !ok || userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.TOTPDisableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "Invalid JSON body")
		return
	}

	if err := h.MFAService.Disable(ctx, userID, req.Code); err != nil {
		if errors.Is(err, service.ErrMFANotEnabled) {
			httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeMFANotEnabled, "MFA is not enabled for this user")
			return
		}
		writeChallengeError(w, log, err)
		return
	}

	log.Info("MFA disabled", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}
