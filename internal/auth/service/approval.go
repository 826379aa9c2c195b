package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crossgate-dev/crossgate/internal/auth/domain"
	"github.com/crossgate-dev/crossgate/internal/auth/registry"
	"github.com/crossgate-dev/crossgate/internal/auth/store"
	"github.com/crossgate-dev/crossgate/pkg/qrpayload"
	"github.com/crossgate-dev/crossgate/pkg/slogx"
)

// ApprovalService is the authenticated device's side of the QR handshake:
// it decodes a scanned payload and finalizes the session it names. All
// transition races land on the registry's conditional write, so at most one
// approve or reject ever takes effect.
type ApprovalService struct {
	Registry registry.Registry
	Store    store.Store
}

// Approve finalizes the scanned session as approved by the given user,
// attaching a snapshot of the approver's MFA enrollment so the new device
// knows whether a second factor still stands between it and tokens.
func (s *ApprovalService) Approve(ctx context.Context, rawPayload string, approverID string) error {
	session, err := s.loadPending(ctx, rawPayload)
	if err != nil {
		return err
	}

	snapshot, err := s.snapshotFor(ctx, approverID)
	if err != nil {
		return fmt.Errorf("failed to read approver enrollment: %w", err)
	}

	session.Status = domain.SessionApproved
	session.ApprovedByUserID = approverID
	session.MFASnapshot = &snapshot

	if err := s.finalize(ctx, session); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("qr session approved",
		slog.String("session_id", session.SessionID),
		slog.String("approved_by", approverID),
		slog.Bool("mfa_enabled", snapshot.Enabled),
	)
	return nil
}

// Reject finalizes the scanned session as rejected.
func (s *ApprovalService) Reject(ctx context.Context, rawPayload string) error {
	session, err := s.loadPending(ctx, rawPayload)
	if err != nil {
		return err
	}

	session.Status = domain.SessionRejected
	session.ApprovedByUserID = ""
	session.MFASnapshot = nil

	if err := s.finalize(ctx, session); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("qr session rejected", slog.String("session_id", session.SessionID))
	return nil
}

// loadPending decodes the payload and returns the session it names, after
// checking every precondition short of the conditional write itself.
func (s *ApprovalService) loadPending(ctx context.Context, rawPayload string) (domain.LoginSession, error) {
	sessionID, err := qrpayload.Decode(rawPayload)
	if err != nil {
		return domain.LoginSession{}, ErrMalformedPayload
	}

	session, err := s.Registry.Sessions().GetSession(ctx, sessionID)
	if errors.Is(err, registry.ErrNotFound) {
		return domain.LoginSession{}, ErrSessionNotFound
	}
	if err != nil {
		return domain.LoginSession{}, err
	}

	if session.Status != domain.SessionPending {
		return domain.LoginSession{}, ErrSessionNotPending
	}
	if session.Expired(time.Now()) {
		// Whoever first reads an expired record removes it.
		if err := s.Registry.Sessions().DeleteSession(ctx, sessionID); err != nil && !errors.Is(err, registry.ErrNotFound) {
			slogx.FromContext(ctx).Warn("failed to delete expired qr session",
				slog.String("session_id", sessionID), "error", err)
		}
		return domain.LoginSession{}, ErrSessionExpired
	}

	return session, nil
}

func (s *ApprovalService) finalize(ctx context.Context, session domain.LoginSession) error {
	err := s.Registry.Sessions().FinalizeSession(ctx, session)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, registry.ErrNotPending):
		return ErrSessionNotPending
	}
	return err
}

// snapshotFor copies the approver's MFA enrollment into a snapshot. A user
// with no confirmed enrollment snapshots as disabled.
func (s *ApprovalService) snapshotFor(ctx context.Context, userID string) (domain.MFASnapshot, error) {
	enrollment, err := s.Store.MFAEnrollments().GetEnrollment(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.MFASnapshot{Enabled: false}, nil
	}
	if err != nil {
		return domain.MFASnapshot{}, err
	}
	if !enrollment.Enabled {
		return domain.MFASnapshot{Enabled: false}, nil
	}
	return domain.MFASnapshot{Enabled: true, Secret: enrollment.Secret}, nil
}
