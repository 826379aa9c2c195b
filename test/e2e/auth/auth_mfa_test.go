package auth_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/crossgate-dev/crossgate/pkg/authsdk"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

// enrollMFA walks a logged-in user through TOTP setup and returns the
// enrolled secret.
func enrollMFA(t *testing.T, client *authsdk.Client, accessToken string) string {
	t.Helper()

	enrollment, err := client.EnrollTOTP(t.Context(), accessToken)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	require.NotEmpty(t, enrollment.ChallengeID)
	require.NotEmpty(t, enrollment.URL)
	require.NotEmpty(t, enrollment.QRPNG)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	err = client.ConfirmTOTP(t.Context(), accessToken, enrollment.ChallengeID, code)
	require.NoError(t, err)

	return enrollment.Secret
}

// TestMFAEnrollmentAndLogin tests the complete TOTP enrollment and
// second-factor login flow.
func TestMFAEnrollmentAndLogin(t *testing.T) {
	baseURL, cleanup := setupService(t)
	defer cleanup()

	client := authsdk.NewClient(baseURL)
	token := loginDirect(t, client, aliceUsername, alicePassword)

	secret := enrollMFA(t, client, token)
	t.Logf("TOTP enrollment completed")

	// Password alone no longer finishes a login
	resp, err := client.Login(t.Context(), aliceUsername, alicePassword)
	require.NoError(t, err)
	require.True(t, resp.MFARequired, "enrolled account should require MFA")
	require.NotEmpty(t, resp.ChallengeID)
	require.Nil(t, resp.Token, "no tokens before the second factor")

	// Wrong code is rejected, challenge stays answerable
	_, err = client.VerifyMFA(t.Context(), resp.ChallengeID, "000000")
	assertAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidCode)

	// Correct code completes the login
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	tokens, err := client.VerifyMFA(t.Context(), resp.ChallengeID, code)
	require.NoError(t, err)
	assertTokenResponse(t, tokens)

	// The challenge is consumed with it
	_, err = client.VerifyMFA(t.Context(), resp.ChallengeID, code)
	assertAPIError(t, err, http.StatusNotFound, authsdk.ErrorCodeChallengeNotFound)
}

// TestMFAEnrollmentRequiresProof verifies nothing is persisted until the
// user produces a valid code for the candidate secret.
func TestMFAEnrollmentRequiresProof(t *testing.T) {
	baseURL, cleanup := setupService(t)
	defer cleanup()

	client := authsdk.NewClient(baseURL)
	token := loginDirect(t, client, aliceUsername, alicePassword)

	enrollment, err := client.EnrollTOTP(t.Context(), token)
	require.NoError(t, err)

	// A wrong code does not enable anything
	err = client.ConfirmTOTP(t.Context(), token, enrollment.ChallengeID, "123456")
	require.Error(t, err)

	resp, err := client.Login(t.Context(), aliceUsername, alicePassword)
	require.NoError(t, err)
	require.False(t, resp.MFARequired, "failed setup must not half-enable MFA")

	// Malformed codes are rejected up front
	err = client.ConfirmTOTP(t.Context(), token, enrollment.ChallengeID, "12345")
	assertAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidCode)
}

// TestMFADisable tests turning the second factor off again.
func TestMFADisable(t *testing.T) {
	baseURL, cleanup := setupService(t)
	defer cleanup()

	client := authsdk.NewClient(baseURL)
	token := loginDirect(t, client, bobUsername, bobPassword)
	secret := enrollMFA(t, client, token)

	t.Run("wrong code keeps MFA on", func(t *testing.T) {
		err := client.DisableTOTP(t.Context(), token, "000000")
		assertAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidCode)
	})

	t.Run("valid code disables", func(t *testing.T) {
		code, err := totp.GenerateCode(secret, time.Now())
		require.NoError(t, err)
		require.NoError(t, client.DisableTOTP(t.Context(), token, code))

		resp, err := client.Login(t.Context(), bobUsername, bobPassword)
		require.NoError(t, err)
		require.False(t, resp.MFARequired)
		assertTokenResponse(t, resp.Token)
	})

	t.Run("disable is not idempotent", func(t *testing.T) {
		code, err := totp.GenerateCode(secret, time.Now())
		require.NoError(t, err)
		err = client.DisableTOTP(t.Context(), token, code)
		assertAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeMFANotEnabled)
	})
}
