package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/crossgate-dev/crossgate/internal/auth/domain"
	"github.com/crossgate-dev/crossgate/internal/auth/store"
)

type mfaEnrollmentsRepo struct {
	db *sql.DB
}

func (r *mfaEnrollmentsRepo) GetEnrollment(ctx context.Context, userID string) (domain.MFAEnrollment, error) {
	var e domain.MFAEnrollment
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, secret, enabled FROM mfa_enrollments WHERE user_id = ?`,
		userID).Scan(&e.UserID, &e.Secret, &e.Enabled)
	if err != nil {
		return domain.MFAEnrollment{}, mapNotFound(err)
	}
	return e, nil
}

// EnableEnrollment writes secret and enabled in a single upsert so a reader
// can never observe one without the other.
func (r *mfaEnrollmentsRepo) EnableEnrollment(ctx context.Context, userID string, secret string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mfa_enrollments (user_id, secret, enabled, created_at, updated_at)
		 VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET secret = excluded.secret, enabled = 1, updated_at = excluded.updated_at`,
		userID, secret, now, now)
	return err
}

func (r *mfaEnrollmentsRepo) DisableEnrollment(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM mfa_enrollments WHERE user_id = ?`, userID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
