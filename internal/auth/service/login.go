package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/crossgate-dev/crossgate/internal/auth/domain"
	"github.com/crossgate-dev/crossgate/internal/auth/store"
	"github.com/crossgate-dev/crossgate/pkg/slogx"
)

var ErrInvalidCredentials = errors.New("invalid_credentials")

// IdentityProvider answers the primary credential check. Password storage
// and hashing live entirely behind this boundary; crossgate only learns
// which user a correct password belongs to. Implementations return
// ErrInvalidCredentials for both unknown users and wrong passwords.
type IdentityProvider interface {
	VerifyPassword(ctx context.Context, username, password string) (domain.User, error)
}

// LoginResult is either tokens or a pointer at the second factor still owed.
type LoginResult struct {
	MFARequired bool
	ChallengeID string
	Tokens      *domain.TokenPair
}

// LoginService ties the login surfaces together: password first factor, QR
// handshake completion and the second-factor step both can lead into.
type LoginService struct {
	Identity IdentityProvider
	Store    store.Store
	MFA      *MFAService
	Tokens   *TokenService
}

// PasswordLogin verifies primary credentials. MFA-enabled accounts get a
// login challenge instead of tokens.
func (s *LoginService) PasswordLogin(ctx context.Context, username, password string) (LoginResult, error) {
	log := slogx.FromContext(ctx)

	user, err := s.Identity.VerifyPassword(ctx, username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			log.Info("password login failed", slog.String("username", username))
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	enrollment, err := s.Store.MFAEnrollments().GetEnrollment(ctx, user.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return LoginResult{}, fmt.Errorf("failed to read enrollment: %w", err)
	}

	if err == nil && enrollment.Enabled {
		challenge, err := s.MFA.IssueChallenge(ctx, user.ID, domain.ChallengeLogin, enrollment.Secret)
		if err != nil {
			return LoginResult{}, err
		}
		log.Info("password login requires mfa", slog.String("user_id", user.ID))
		return LoginResult{MFARequired: true, ChallengeID: challenge.ID}, nil
	}

	tokens, err := s.Tokens.Issue(user, []string{AMRPassword})
	if err != nil {
		return LoginResult{}, err
	}
	log.Info("password login succeeded", slog.String("user_id", user.ID))
	return LoginResult{Tokens: &tokens}, nil
}

// CompleteQRHandshake converts an approved handshake into a login result.
// If the approver's snapshot says MFA is enabled, the new device owes a
// code against the snapshotted secret before it sees tokens.
func (s *LoginService) CompleteQRHandshake(ctx context.Context, result domain.HandshakeResult) (LoginResult, error) {
	if result.Outcome != domain.OutcomeApproved {
		return LoginResult{}, fmt.Errorf("handshake not approved: %s", result.Outcome)
	}

	user, err := s.Store.Users().GetUserByID(ctx, result.ApprovedByUserID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to read approving user: %w", err)
	}

	if result.MFASnapshot != nil && result.MFASnapshot.Enabled {
		challenge, err := s.MFA.IssueChallenge(ctx, user.ID, domain.ChallengeQR, result.MFASnapshot.Secret)
		if err != nil {
			return LoginResult{}, err
		}
		return LoginResult{MFARequired: true, ChallengeID: challenge.ID}, nil
	}

	tokens, err := s.Tokens.Issue(user, []string{AMRQR})
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Tokens: &tokens}, nil
}

// CompleteMFAChallenge answers an outstanding second-factor challenge and,
// on success, issues the tokens the first factor earned.
func (s *LoginService) CompleteMFAChallenge(ctx context.Context, challengeID, code string) (domain.TokenPair, error) {
	challenge, err := s.MFA.VerifyLogin(ctx, challengeID, code)
	if err != nil {
		return domain.TokenPair{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, challenge.UserID)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("failed to read user: %w", err)
	}

	amr := []string{AMRPassword, AMROTP}
	if challenge.Kind == domain.ChallengeQR {
		amr = []string{AMRQR, AMROTP}
	}

	tokens, err := s.Tokens.Issue(user, amr)
	if err != nil {
		return domain.TokenPair{}, err
	}
	slogx.FromContext(ctx).Info("mfa challenge completed",
		slog.String("user_id", user.ID),
		slog.String("kind", string(challenge.Kind)),
	)
	return tokens, nil
}
