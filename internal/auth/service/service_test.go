package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crossgate-dev/crossgate/internal/auth/registry/drivers/memory"
	"github.com/crossgate-dev/crossgate/internal/auth/store/drivers/sqlite"
	"github.com/crossgate-dev/crossgate/pkg/jwtx"
)

// testEnv wires every service against a memory registry and a throwaway
// sqlite store, the same shape the app composes in production.
type testEnv struct {
	Registry *memory.Registry
	Store    *sqlite.Store
	Signer   *jwtx.Signer

	Coordinator *QRCoordinator
	Approval    *ApprovalService
	MFA         *MFAService
	Login       *LoginService
	Tokens      *TokenService
	Identity    *StaticIdentityProvider
}

const testIssuer = "crossgate-test"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	reg := memory.New()
	t.Cleanup(func() { _ = reg.Close() })

	signer, err := jwtx.NewEphemeralSigner("test-key-001")
	require.NoError(t, err)

	identity, err := NewStaticIdentityProvider(ctx, st, []SeedUser{
		{Username: "alice", Password: "correct horse", PreferredName: "Alice"},
		{Username: "bob", Password: "hunter2", PreferredName: "Bob"},
	})
	require.NoError(t, err)

	tokens := &TokenService{Signer: signer, Issuer: testIssuer, AccessTTL: 15 * time.Minute}
	mfa := &MFAService{Registry: reg, Store: st, Issuer: "Crossgate"}

	return &testEnv{
		Registry:    reg,
		Store:       st,
		Signer:      signer,
		Coordinator: &QRCoordinator{Registry: reg},
		Approval:    &ApprovalService{Registry: reg, Store: st},
		MFA:         mfa,
		Login:       &LoginService{Identity: identity, Store: st, MFA: mfa, Tokens: tokens},
		Tokens:      tokens,
		Identity:    identity,
	}
}

// userID resolves a seeded username to its store id.
func (e *testEnv) userID(t *testing.T, username string) string {
	t.Helper()
	user, err := e.Store.Users().GetUserByUsername(context.Background(), username)
	require.NoError(t, err)
	return user.ID
}

// verifier builds a token verifier over the env's signing key.
func (e *testEnv) verifier(t *testing.T) *jwtx.Verifier {
	t.Helper()
	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddSigner(e.Signer))
	return jwtx.NewVerifier(keys, testIssuer)
}

// requireAMR asserts the token carries exactly the given amr values.
func requireAMR(t *testing.T, v *jwtx.Verifier, token string, want ...string) {
	t.Helper()
	claims, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, want, claims.AMR)
}
