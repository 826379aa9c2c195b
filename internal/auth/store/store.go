package store

import (
	"context"
	"errors"

	"github.com/crossgate-dev/crossgate/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the durable credential data access interface. Concrete drivers
// (sqlite today, postgres later) implement this. Sub-repositories keep
// concerns tidy and testable.
type Store interface {
	Users() Users
	MFAEnrollments() MFAEnrollments

	ApplyMigrations() error

	// Close releases any underlying resources (optional for sqlite).
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during password login.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePreferredName mutates the preferred_name and bumps updated_at.
	UpdatePreferredName(ctx context.Context, userID string, preferredName string) error

	// DeleteUser cascades to mfa_enrollments (per schema).
	DeleteUser(ctx context.Context, userID string) error
}

type MFAEnrollments interface {
	// GetEnrollment returns a user's MFA enrollment. ErrNotFound means the
	// user has never confirmed an enrollment.
	GetEnrollment(ctx context.Context, userID string) (domain.MFAEnrollment, error)

	// EnableEnrollment persists a confirmed enrollment in one write: secret
	// set and enabled together. Upserts over a previously disabled row.
	EnableEnrollment(ctx context.Context, userID string, secret string) error

	// DisableEnrollment clears the secret and the enabled flag atomically.
	DisableEnrollment(ctx context.Context, userID string) error
}
