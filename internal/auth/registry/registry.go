package registry

import (
	"context"
	"errors"

	"github.com/crossgate-dev/crossgate/internal/auth/domain"
)

var (
	// ErrNotFound is returned when a session or challenge does not exist,
	// has expired out of the registry, or has been deleted.
	ErrNotFound = errors.New("registry: not found")

	// ErrAlreadyExists is returned when creating a record with an id that
	// is already present.
	ErrAlreadyExists = errors.New("registry: already exists")

	// ErrNotPending is returned by FinalizeSession when the stored session
	// is no longer in the pending state. Exactly one finalize wins.
	ErrNotPending = errors.New("registry: session not pending")

	// ErrUnavailable wraps backend connectivity failures so callers can
	// distinguish them from domain outcomes.
	ErrUnavailable = errors.New("registry: unavailable")
)

// Registry is the short-lived coordination state backend. Records here carry
// their own TTL and never outlive it. Concrete drivers (redis, memory)
// implement this.
type Registry interface {
	Sessions() Sessions
	Challenges() Challenges

	// Ping verifies the backend connection is still alive.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}

// SessionEvent is delivered to watchers when a login session changes state.
// Deleted is set when the record was removed without reaching a terminal
// status, e.g. by a cancel or an expiry sweep.
type SessionEvent struct {
	Session domain.LoginSession
	Deleted bool
}

type Sessions interface {
	// CreateSession stores a new pending login session. The record expires
	// from the registry at session.ExpiresAt.
	CreateSession(ctx context.Context, session domain.LoginSession) error

	// GetSession returns a session by id. Expired records report ErrNotFound.
	GetSession(ctx context.Context, sessionID string) (domain.LoginSession, error)

	// FinalizeSession transitions a session from pending to the given
	// terminal status, atomically. The update only applies if the stored
	// session is still pending; otherwise ErrNotPending is returned and the
	// stored record is untouched. Watchers are notified on success.
	FinalizeSession(ctx context.Context, session domain.LoginSession) error

	// DeleteSession removes a session and notifies watchers with a deletion
	// event. Deleting an absent session returns ErrNotFound.
	DeleteSession(ctx context.Context, sessionID string) error

	// WatchSession subscribes to state changes for one session. The returned
	// channel is closed when ctx is cancelled or after a terminal event. The
	// caller must drain the channel promptly; slow watchers may miss
	// intermediate events but always receive the latest state.
	WatchSession(ctx context.Context, sessionID string) (<-chan SessionEvent, error)

	// DeleteExpiredSessions removes sessions past their expiry (housekeeping
	// for drivers without native TTL support).
	DeleteExpiredSessions(ctx context.Context) error
}

type Challenges interface {
	// CreateChallenge stores a new MFA challenge, expiring at ExpiresAt.
	CreateChallenge(ctx context.Context, challenge domain.MFAChallenge) error

	// GetChallenge retrieves a challenge by id (only if not expired).
	GetChallenge(ctx context.Context, id string) (domain.MFAChallenge, error)

	// IncrementChallengeAttempts bumps the failed attempt counter and returns
	// the updated challenge.
	IncrementChallengeAttempts(ctx context.Context, id string) (domain.MFAChallenge, error)

	// DeleteChallenge removes a challenge by id.
	DeleteChallenge(ctx context.Context, id string) error

	// DeleteExpiredChallenges removes all expired challenges (housekeeping).
	DeleteExpiredChallenges(ctx context.Context) error
}
