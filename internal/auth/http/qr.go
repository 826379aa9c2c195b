package http

import (
	"context"
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
)

// QRHandler drives the handshake from the unauthenticated device's side.
type QRHandler struct {
	QRCoordinator *service.QRCoordinator
	LoginService  *service.LoginService
}

// HandleStart handles POST /v1/qr/start
//
//	@Summary		Open a QR login handshake
//	@Description	Mints a pending login session and returns the payload for the authenticated device to scan.
//	@Tags			QR
//	@Produce		json
//	@Success		201	{object}	authsdk.QRStartResponse	"Session ID, payload and QR image"
//	@Failure		503	{object}	authsdk.ErrorResponse	"Registry unavailable"
//	@Router			/v1/qr/start [post].
func (h *QRHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	start, err := h.QRCoordinator.Start(ctx)
	if err != nil {
		if errors.Is(err, registry.ErrUnavailable) {
			authsdk.ErrStoreUnavailable.WriteError(w)
			return
		}
		log.Error("failed to start qr session", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.QRStartResponse{
		SessionID: start.SessionID,
		Payload:   start.Payload,
		QRPNG:     start.QRPNG,
		ExpiresAt: start.ExpiresAt,
	})
}

// HandleWait handles GET /v1/qr/{session_id}/wait
//
//	@Summary		Wait for the handshake outcome
//	@Description	Blocks until the session reaches a terminal state, then delivers the outcome exactly once.
//	@Description	For an approved session the response carries tokens, or an MFA challenge when the approver has MFA enabled.
//	@Tags			QR
//	@Produce		json
//	@Param			session_id	path		string					true	"Session ID"
//	@Success		200			{object}	authsdk.QRWaitResponse	"Terminal outcome"
//	@Failure		404			{object}	authsdk.ErrorResponse	"Unknown or already-consumed session"
//	@Failure		503			{object}	authsdk.ErrorResponse	"Registry unavailable"
//	@Router			/v1/qr/{session_id}/wait [get].
func (h *QRHandler) HandleWait(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	sessionID := r.PathValue("session_id")
	result, err := h.QRCoordinator.Wait(ctx, sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			httpx.WriteError(w, http.StatusNotFound, authsdk.ErrorCodeSessionNotFound, "Session not found")
			return
		}
		if errors.Is(err, registry.ErrUnavailable) {
			authsdk.ErrStoreUnavailable.WriteError(w)
			return
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Client went away; there is nobody to answer.
			return
		}
		log.Error("failed to wait for qr session", "session_id", sessionID, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	resp := authsdk.QRWaitResponse{
		SessionID: result.SessionID,
		Outcome:   string(result.Outcome),
	}

	if result.Outcome == domain.OutcomeApproved {
		login, err := h.LoginService.CompleteQRHandshake(ctx, result)
		if err != nil {
			log.Error("failed to complete qr handshake", "session_id", sessionID, "err", err)
			authsdk.ErrServerError.WriteError(w)
			return
		}
		resp.MFARequired = login.MFARequired
		resp.ChallengeID = login.ChallengeID
		if login.Tokens != nil {
			resp.Token = tokenResponse(*login.Tokens)
		}
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleCancel handles DELETE /v1/qr/{session_id}
//
//	@Summary		Cancel a pending handshake
//	@Description	Abandons a still-pending session. Cancelling a session that is already gone succeeds.
//	@Tags			QR
//	@Param			session_id	path	string	true	"Session ID"
//	@Success		204			"Cancelled"
//	@Failure		503			{object}	authsdk.ErrorResponse	"Registry unavailable"
//	@Router			/v1/qr/{session_id} [delete].
func (h *QRHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	sessionID := r.PathValue("session_id")
	if err := h.QRCoordinator.Cancel(ctx, sessionID); err != nil {
		if errors.Is(err, registry.ErrUnavailable) {
			authsdk.ErrStoreUnavailable.WriteError(w)
			return
		}
		log.Error("failed to cancel qr session", "session_id", sessionID, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ApprovalHandler drives the handshake from the authenticated device's side.
type ApprovalHandler struct {
	ApprovalService *service.ApprovalService
}

// HandleApprove handles POST /v1/qr/approve
//
//	@Summary		Approve a scanned handshake
//	@Description	Approves the pending session named by a scanned payload, attaching the approver's MFA snapshot.
//	@Tags			QR
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.QRApprovalRequest	true	"Scanned payload"
//	@Success		204		"Approved"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed payload"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Failure		404		{object}	authsdk.ErrorResponse	"Session not found"
//	@Failure		409		{object}	authsdk.ErrorResponse	"Session already finalized"
//	@Failure		410		{object}	authsdk.ErrorResponse	"Session expired"
//	@Router			/v1/qr/approve [post].
func (h *ApprovalHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := ctx.Value(httpx.CtxKeyUserID).(string)
	if !ok || userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	payload, ok := decodeApprovalBody(w, r)
	if !ok {
		return
	}

	if err := h.ApprovalService.Approve(ctx, payload, userID); err != nil {
		writeApprovalError(w, log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleReject handles POST /v1/qr/reject
//
//	@Summary		Reject a scanned handshake
//	@Description	Rejects the pending session named by a scanned payload.
//	@Tags			QR
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.QRApprovalRequest	true	"Scanned payload"
//	@Success		204		"Rejected"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed payload"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Failure		404		{object}	authsdk.ErrorResponse	"Session not found"
//	@Failure		409		{object}	authsdk.ErrorResponse	"Session already finalized"
//	@Failure		410		{object}	authsdk.ErrorResponse	"Session expired"
//	@Router			/v1/qr/reject [post].
func (h *ApprovalHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := ctx.Value(httpx.CtxKeyUserID).(string)
	if !ok || userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	payload, ok := decodeApprovalBody(w, r)
	if !ok {
		return
	}

	if err := h.ApprovalService.Reject(ctx, payload); err != nil {
		writeApprovalError(w, log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func decodeApprovalBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req authsdk.QRApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "Invalid JSON body")
		return "", false
	}
	if req.Payload == "" {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeMalformedPayload, "payload is required")
		return "", false
	}
	return req.Payload, true
}

func writeApprovalError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrMalformedPayload):
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeMalformedPayload, "Payload is not a crossgate login code")
	case errors.Is(err, service.ErrSessionNotFound):
		httpx.WriteError(w, http.StatusNotFound, authsdk.ErrorCodeSessionNotFound, "Session not found")
	case errors.Is(err, service.ErrSessionNotPending):
		httpx.WriteError(w, http.StatusConflict, authsdk.ErrorCodeSessionNotPending, "Session already finalized")
	case errors.Is(err, service.ErrSessionExpired):
		httpx.WriteError(w, http.StatusGone, authsdk.ErrorCodeSessionExpired, "Session expired")
	case errors.Is(err, registry.ErrUnavailable):
		authsdk.ErrStoreUnavailable.WriteError(w)
	default:
		log.Error("failed to finalize qr session", "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}
