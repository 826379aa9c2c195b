package service

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crossgate-dev/crossgate/internal/auth/domain"
	"github.com/crossgate-dev/crossgate/internal/auth/registry"
	"github.com/crossgate-dev/crossgate/pkg/qrpayload"
)

func TestQRStart(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	start, err := env.Coordinator.Start(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, start.SessionID)

	sessionID, err := qrpayload.Decode(start.Payload)
	require.NoError(t, err)
	require.Equal(t, start.SessionID, sessionID)

	require.True(t, bytes.HasPrefix(start.QRPNG, []byte("\x89PNG")))
	require.WithinDuration(t, time.Now().Add(domain.SessionValidity), start.ExpiresAt, 5*time.Second)

	session, err := env.Registry.Sessions().GetSession(ctx, start.SessionID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionPending, session.Status)
}

func TestQRApproveFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	approverID := env.userID(t, "alice")

	start, err := env.Coordinator.Start(ctx)
	require.NoError(t, err)

	done := make(chan domain.HandshakeResult, 1)
	go func() {
		result, err := env.Coordinator.Wait(ctx, start.SessionID)
		if err == nil {
			done <- result
		}
		close(done)
	}()

	// Give the waiter a moment to subscribe before approving.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, env.Approval.Approve(ctx, start.Payload, approverID))

	result, ok := <-done
	require.True(t, ok, "wait should surface a result")
	require.Equal(t, domain.OutcomeApproved, result.Outcome)
	require.Equal(t, approverID, result.ApprovedByUserID)
	require.NotNil(t, result.MFASnapshot)
	require.False(t, result.MFASnapshot.Enabled, "alice has no MFA enrollment")

	// Outcome is consumed: the record is gone.
	_, err = env.Coordinator.Wait(ctx, start.SessionID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestQRApproveCarriesMFASnapshot(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	approverID := env.userID(t, "alice")
	require.NoError(t, env.Store.MFAEnrollments().EnableEnrollment(ctx, approverID, "JBSWY3DPEHPK3PXP"))

	start, err := env.Coordinator.Start(ctx)
	require.NoError(t, err)

	done := make(chan domain.HandshakeResult, 1)
	go func() {
		result, _ := env.Coordinator.Wait(ctx, start.SessionID)
		done <- result
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, env.Approval.Approve(ctx, start.Payload, approverID))

	result := <-done
	require.Equal(t, domain.OutcomeApproved, result.Outcome)
	require.NotNil(t, result.MFASnapshot)
	require.True(t, result.MFASnapshot.Enabled)
	require.Equal(t, "JBSWY3DPEHPK3PXP", result.MFASnapshot.Secret)
}

func TestQRRejectFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start, err := env.Coordinator.Start(ctx)
	require.NoError(t, err)

	done := make(chan domain.HandshakeResult, 1)
	go func() {
		result, _ := env.Coordinator.Wait(ctx, start.SessionID)
		done <- result
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, env.Approval.Reject(ctx, start.Payload))

	result := <-done
	require.Equal(t, domain.OutcomeRejected, result.Outcome)
	require.Empty(t, result.ApprovedByUserID)
	require.Nil(t, result.MFASnapshot)
}

func TestQRCancelFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start, err := env.Coordinator.Start(ctx)
	require.NoError(t, err)

	done := make(chan domain.HandshakeResult, 1)
	go func() {
		result, _ := env.Coordinator.Wait(ctx, start.SessionID)
		done <- result
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, env.Coordinator.Cancel(ctx, start.SessionID))

	result := <-done
	require.Equal(t, domain.OutcomeCancelled, result.Outcome)

	// Cancelling again is a no-op.
	require.NoError(t, env.Coordinator.Cancel(ctx, start.SessionID))

	// An approval after cancellation finds nothing.
	err = env.Approval.Approve(ctx, start.Payload, env.userID(t, "alice"))
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestQRWaitExpired(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Plant a session that expires almost immediately.
	now := time.Now()
	session := domain.LoginSession{
		SessionID: "sess-short",
		Status:    domain.SessionPending,
		CreatedAt: now,
		ExpiresAt: now.Add(100 * time.Millisecond),
	}
	require.NoError(t, env.Registry.Sessions().CreateSession(ctx, session))

	result, err := env.Coordinator.Wait(ctx, "sess-short")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeExpired, result.Outcome)
}

func TestQRWaitExpiredDuringSweep(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now()
	session := domain.LoginSession{
		SessionID: "sess-swept",
		Status:    domain.SessionPending,
		CreatedAt: now,
		ExpiresAt: now.Add(100 * time.Millisecond),
	}
	require.NoError(t, env.Registry.Sessions().CreateSession(ctx, session))

	// A housekeeping sweep racing the waiter's own expiry timer must still
	// surface as expiry, never as a cancel, whichever side wins.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				_ = env.Registry.Sessions().DeleteExpiredSessions(sweepCtx)
			}
		}
	}()

	result, err := env.Coordinator.Wait(ctx, "sess-swept")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeExpired, result.Outcome)
}

func TestApprovePreconditions(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	approverID := env.userID(t, "alice")

	t.Run("malformed payload", func(t *testing.T) {
		require.ErrorIs(t, env.Approval.Approve(ctx, "not json", approverID), ErrMalformedPayload)
		require.ErrorIs(t, env.Approval.Approve(ctx, `{"type":"other","session_id":"x"}`, approverID), ErrMalformedPayload)
	})

	t.Run("unknown session", func(t *testing.T) {
		payload, err := qrpayload.Encode("no-such-session")
		require.NoError(t, err)
		require.ErrorIs(t, env.Approval.Approve(ctx, payload, approverID), ErrSessionNotFound)
		require.ErrorIs(t, env.Approval.Reject(ctx, payload), ErrSessionNotFound)
	})

	t.Run("already finalized session", func(t *testing.T) {
		start, err := env.Coordinator.Start(ctx)
		require.NoError(t, err)

		require.NoError(t, env.Approval.Approve(ctx, start.Payload, approverID))
		require.ErrorIs(t, env.Approval.Approve(ctx, start.Payload, approverID), ErrSessionNotPending)
		require.ErrorIs(t, env.Approval.Reject(ctx, start.Payload), ErrSessionNotPending)
	})

	t.Run("expired session is deleted on read", func(t *testing.T) {
		now := time.Now()
		session := domain.LoginSession{
			SessionID: "sess-stale",
			Status:    domain.SessionPending,
			CreatedAt: now,
			ExpiresAt: now.Add(50 * time.Millisecond),
		}
		require.NoError(t, env.Registry.Sessions().CreateSession(ctx, session))
		time.Sleep(100 * time.Millisecond)

		payload, err := qrpayload.Encode("sess-stale")
		require.NoError(t, err)
		require.ErrorIs(t, env.Approval.Approve(ctx, payload, approverID), ErrSessionExpired)

		// The first read removed the stale record, so the next attempt
		// finds nothing at all.
		_, err = env.Registry.Sessions().GetSession(ctx, "sess-stale")
		require.ErrorIs(t, err, registry.ErrNotFound)
		require.ErrorIs(t, env.Approval.Approve(ctx, payload, approverID), ErrSessionNotFound)
	})
}

func TestConcurrentApproveRejectOneWins(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	approverID := env.userID(t, "alice")

	start, err := env.Coordinator.Start(ctx)
	require.NoError(t, err)

	const racers = 10
	var successes int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := range racers {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			var err error
			if n%2 == 0 {
				err = env.Approval.Approve(ctx, start.Payload, approverID)
			} else {
				err = env.Approval.Reject(ctx, start.Payload)
			}
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, successes, "exactly one transition may win")

	session, err := env.Registry.Sessions().GetSession(ctx, start.SessionID)
	require.NoError(t, err)
	require.NotEqual(t, domain.SessionPending, session.Status)
}
