package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crossgate-dev/crossgate/internal/auth/domain"
	"github.com/crossgate-dev/crossgate/internal/auth/registry"
	"github.com/crossgate-dev/crossgate/pkg/idx"
	"github.com/crossgate-dev/crossgate/pkg/qrpayload"
	"github.com/crossgate-dev/crossgate/pkg/slogx"
)

var (
	ErrSessionNotFound   = errors.New("session_not_found")
	ErrSessionNotPending = errors.New("session_not_pending")
	ErrSessionExpired    = errors.New("session_expired")
	ErrMalformedPayload  = errors.New("malformed_payload")
)

// QRCodeSize is the rendered QR image edge length in pixels.
const QRCodeSize = 256

// QRStart is what the unauthenticated device receives when it opens a
// handshake: the payload to display and the window it stays valid for.
type QRStart struct {
	SessionID string
	Payload   string
	QRPNG     []byte
	ExpiresAt time.Time
}

// QRCoordinator drives the cross-device login handshake from the
// unauthenticated device's side. A session moves from pending to exactly one
// of approved, rejected, expired or cancelled, and Wait surfaces that
// terminal outcome exactly once: whoever consumes it deletes the record.
type QRCoordinator struct {
	Registry registry.Registry
}

// Start mints a new pending login session and returns its scannable payload.
func (c *QRCoordinator) Start(ctx context.Context) (QRStart, error) {
	now := time.Now()
	sessionID := idx.New().String()

	session := domain.LoginSession{
		SessionID: sessionID,
		Status:    domain.SessionPending,
		CreatedAt: now,
		ExpiresAt: now.Add(domain.SessionValidity),
	}
	if err := c.Registry.Sessions().CreateSession(ctx, session); err != nil {
		return QRStart{}, fmt.Errorf("failed to create login session: %w", err)
	}

	payload, err := qrpayload.Encode(sessionID)
	if err != nil {
		return QRStart{}, err
	}
	png, err := qrpayload.RenderPNG(payload, QRCodeSize)
	if err != nil {
		return QRStart{}, fmt.Errorf("failed to render QR code: %w", err)
	}

	return QRStart{
		SessionID: sessionID,
		Payload:   payload,
		QRPNG:     png,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Wait blocks until the session reaches a terminal state and returns it.
// The record is deleted as part of consuming the outcome, so a second Wait
// on the same session reports ErrSessionNotFound.
func (c *QRCoordinator) Wait(ctx context.Context, sessionID string) (domain.HandshakeResult, error) {
	log := slogx.FromContext(ctx)

	events, err := c.Registry.Sessions().WatchSession(ctx, sessionID)
	if err != nil {
		return domain.HandshakeResult{}, fmt.Errorf("failed to watch login session: %w", err)
	}

	// Re-read after subscribing so a transition between Start and Wait
	// cannot slip past us.
	session, err := c.Registry.Sessions().GetSession(ctx, sessionID)
	if errors.Is(err, registry.ErrNotFound) {
		return domain.HandshakeResult{}, ErrSessionNotFound
	}
	if err != nil {
		return domain.HandshakeResult{}, err
	}

	if session.Status != domain.SessionPending {
		return c.consume(ctx, session), nil
	}
	if session.Expired(time.Now()) {
		c.reapPending(sessionID)
		return domain.HandshakeResult{SessionID: sessionID, Outcome: domain.OutcomeExpired}, nil
	}

	expiry := time.NewTimer(time.Until(session.ExpiresAt))
	defer expiry.Stop()

	for {
		select {
		case <-ctx.Done():
			c.reapPending(sessionID)
			return domain.HandshakeResult{}, ctx.Err()

		case <-expiry.C:
			c.reapPending(sessionID)
			return domain.HandshakeResult{SessionID: sessionID, Outcome: domain.OutcomeExpired}, nil

		case ev, ok := <-events:
			if !ok {
				// Stream ended without a terminal event; the registry
				// connection is gone or ctx fired.
				if ctx.Err() != nil {
					c.reapPending(sessionID)
					return domain.HandshakeResult{}, ctx.Err()
				}
				return domain.HandshakeResult{}, fmt.Errorf("session event stream closed: %w", registry.ErrUnavailable)
			}

			if ev.Deleted {
				if ev.Session.Status == domain.SessionPending {
					// A pending tombstone is either a cancel or the
					// housekeeping sweep reaping the session at expiry.
					if ev.Session.Expired(time.Now()) {
						return domain.HandshakeResult{SessionID: sessionID, Outcome: domain.OutcomeExpired}, nil
					}
					log.Info("qr session cancelled", "session_id", sessionID)
					return domain.HandshakeResult{SessionID: sessionID, Outcome: domain.OutcomeCancelled}, nil
				}
				continue
			}
			if ev.Session.Status != domain.SessionPending {
				return c.consume(ctx, ev.Session), nil
			}
		}
	}
}

// Cancel abandons a still-pending handshake. Cancelling a session that is
// already gone is a no-op.
func (c *QRCoordinator) Cancel(ctx context.Context, sessionID string) error {
	session, err := c.Registry.Sessions().GetSession(ctx, sessionID)
	if errors.Is(err, registry.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if session.Status != domain.SessionPending {
		return nil
	}

	if err := c.Registry.Sessions().DeleteSession(ctx, sessionID); err != nil && !errors.Is(err, registry.ErrNotFound) {
		return err
	}
	return nil
}

// consume turns a finalized session record into a handshake result and
// removes the record so the outcome is surfaced exactly once.
func (c *QRCoordinator) consume(ctx context.Context, session domain.LoginSession) domain.HandshakeResult {
	log := slogx.FromContext(ctx)

	if err := c.Registry.Sessions().DeleteSession(ctx, session.SessionID); err != nil && !errors.Is(err, registry.ErrNotFound) {
		log.Warn("failed to delete finalized qr session", "session_id", session.SessionID, "error", err)
	}

	result := domain.HandshakeResult{SessionID: session.SessionID}
	switch session.Status {
	case domain.SessionApproved:
		result.Outcome = domain.OutcomeApproved
		result.ApprovedByUserID = session.ApprovedByUserID
		result.MFASnapshot = session.MFASnapshot
	case domain.SessionRejected:
		result.Outcome = domain.OutcomeRejected
	}
	return result
}

// reapPending best-effort deletes a record that is still pending. Uses a
// fresh context because the caller's may already be done.
func (c *QRCoordinator) reapPending(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := c.Registry.Sessions().GetSession(ctx, sessionID)
	if err != nil || session.Status != domain.SessionPending {
		return
	}
	_ = c.Registry.Sessions().DeleteSession(ctx, sessionID)
}
