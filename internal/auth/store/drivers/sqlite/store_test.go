package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crossgate-dev/crossgate/internal/auth/domain"
	"github.com/crossgate-dev/crossgate/internal/auth/store"
	"github.com/crossgate-dev/crossgate/internal/auth/store/drivers/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "auth.db")
	s, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestUsersRepo(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	user := domain.User{
		ID:            "01J0USER00000000000000001",
		Username:      "alice",
		PreferredName: "Alice",
	}
	require.NoError(t, s.Users().CreateUser(ctx, user))

	t.Run("get by id", func(t *testing.T) {
		got, err := s.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, "alice", got.Username)
		require.False(t, got.CreatedAt.IsZero())
	})

	t.Run("get by username", func(t *testing.T) {
		got, err := s.Users().GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, user.ID, got.ID)
	})

	t.Run("missing user is not found", func(t *testing.T) {
		_, err := s.Users().GetUserByID(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("update preferred name", func(t *testing.T) {
		require.NoError(t, s.Users().UpdatePreferredName(ctx, user.ID, "Alice L"))

		got, err := s.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, "Alice L", got.PreferredName)

		require.ErrorIs(t, s.Users().UpdatePreferredName(ctx, "missing", "x"), store.ErrNotFound)
	})
}

func TestMFAEnrollmentsRepo(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	user := domain.User{
		ID:            "01J0USER00000000000000002",
		Username:      "bob",
		PreferredName: "Bob",
	}
	require.NoError(t, s.Users().CreateUser(ctx, user))

	t.Run("no enrollment means not found", func(t *testing.T) {
		_, err := s.MFAEnrollments().GetEnrollment(ctx, user.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("enable persists secret and enabled together", func(t *testing.T) {
		require.NoError(t, s.MFAEnrollments().EnableEnrollment(ctx, user.ID, "JBSWY3DPEHPK3PXP"))

		got, err := s.MFAEnrollments().GetEnrollment(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, got.Enabled)
		require.Equal(t, "JBSWY3DPEHPK3PXP", got.Secret)
	})

	t.Run("re-enable upserts a new secret", func(t *testing.T) {
		require.NoError(t, s.MFAEnrollments().EnableEnrollment(ctx, user.ID, "NEWSECRETNEWSECRET"))

		got, err := s.MFAEnrollments().GetEnrollment(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, "NEWSECRETNEWSECRET", got.Secret)
	})

	t.Run("disable removes the row", func(t *testing.T) {
		require.NoError(t, s.MFAEnrollments().DisableEnrollment(ctx, user.ID))

		_, err := s.MFAEnrollments().GetEnrollment(ctx, user.ID)
		require.ErrorIs(t, err, store.ErrNotFound)

		require.ErrorIs(t, s.MFAEnrollments().DisableEnrollment(ctx, user.ID), store.ErrNotFound)
	})

	t.Run("deleting a user cascades", func(t *testing.T) {
		require.NoError(t, s.MFAEnrollments().EnableEnrollment(ctx, user.ID, "JBSWY3DPEHPK3PXP"))
		require.NoError(t, s.Users().DeleteUser(ctx, user.ID))

		_, err := s.MFAEnrollments().GetEnrollment(ctx, user.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}
