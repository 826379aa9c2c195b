package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// defaultTimeout covers the five minute handshake validity window plus slack
// so QRWait can block for a full session lifetime.
const defaultTimeout = 5*time.Minute + 30*time.Second

// Client is a client for the crossgate authentication service.
//
// GET /v1/qr/{session_id}/wait holds the connection open until the handshake
// reaches a terminal state, so the default HTTP timeout covers the full
// session validity window plus slack.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new crossgate client.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// Login performs a password login. When the account has MFA enabled the
// response carries a challenge ID instead of tokens; answer it with
// VerifyMFA.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/login", "", LoginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	var out LoginResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyMFA answers an outstanding login challenge with a TOTP code and
// returns the tokens the first factor withheld.
func (c *Client) VerifyMFA(ctx context.Context, challengeID, code string) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/mfa/verify", "", MFAVerifyRequest{
		ChallengeID: challengeID,
		Code:        code,
	})
	if err != nil {
		return nil, err
	}

	var out TokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// QRStart opens a cross-device login handshake.
func (c *Client) QRStart(ctx context.Context) (*QRStartResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/qr/start", "", nil)
	if err != nil {
		return nil, err
	}

	var out QRStartResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// QRWait blocks until the handshake reaches a terminal state and returns the
// outcome. The outcome is delivered exactly once; a second call reports the
// session as unknown.
func (c *Client) QRWait(ctx context.Context, sessionID string) (*QRWaitResponse, error) {
	path := fmt.Sprintf("/v1/qr/%s/wait", sessionID)
	resp, err := c.doRequest(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}

	var out QRWaitResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// QRCancel abandons a still-pending handshake. Cancelling a session that is
// already gone succeeds.
func (c *Client) QRCancel(ctx context.Context, sessionID string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/v1/qr/"+sessionID, "", nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// QRApprove approves a scanned handshake payload as the authenticated user.
func (c *Client) QRApprove(ctx context.Context, accessToken, payload string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/qr/approve", accessToken, QRApprovalRequest{
		Payload: payload,
	})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// QRReject rejects a scanned handshake payload as the authenticated user.
func (c *Client) QRReject(ctx context.Context, accessToken, payload string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/qr/reject", accessToken, QRApprovalRequest{
		Payload: payload,
	})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// EnrollTOTP begins TOTP setup for the authenticated user. Nothing is
// persisted until ConfirmTOTP succeeds with the returned challenge ID.
func (c *Client) EnrollTOTP(ctx context.Context, accessToken string) (*TOTPEnrollResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/mfa/totp/enroll", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var out TOTPEnrollResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmTOTP proves possession of an enrolling secret and enables MFA.
func (c *Client) ConfirmTOTP(ctx context.Context, accessToken, challengeID, code string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/mfa/totp/verify", accessToken, TOTPConfirmRequest{
		ChallengeID: challengeID,
		Code:        code,
	})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// DisableTOTP turns MFA off for the authenticated user. Requires one
// current code.
func (c *Client) DisableTOTP(ctx context.Context, accessToken, code string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/v1/mfa/totp", accessToken, TOTPDisableRequest{
		Code: code,
	})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// JWKS fetches the public JSON Web Key Set.
func (c *Client) JWKS(ctx context.Context) (*JWKSResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/.well-known/jwks.json", "", nil)
	if err != nil {
		return nil, err
	}

	var out JWKSResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Livez calls the liveness probe.
func (c *Client) Livez(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

// Readyz calls the readiness probe. A degraded service returns a typed
// *APIError alongside no response.
func (c *Client) Readyz(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *Client) health(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}

	var out HealthResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
