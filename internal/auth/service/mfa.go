package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crossgate-dev/crossgate/internal/auth/domain"
	"github.com/crossgate-dev/crossgate/internal/auth/registry"
	"github.com/crossgate-dev/crossgate/internal/auth/store"
	"github.com/crossgate-dev/crossgate/pkg/idx"
	"github.com/crossgate-dev/crossgate/pkg/totp"
)

var (
	ErrInvalidCode       = errors.New("invalid_code")
	ErrMFANotEnabled     = errors.New("mfa not enabled for this user")
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled for this user")
	ErrTooManyAttempts   = errors.New("too_many_attempts")
	ErrChallengeNotFound = errors.New("challenge not found or expired")
)

// MFAService runs TOTP enrollment and verification. During setup the
// candidate secret lives only in a registry challenge; the credential store
// sees it after the user has produced one valid code, never before.
type MFAService struct {
	Registry registry.Registry
	Store    store.Store
	Issuer   string // issuer label in otpauth URLs (e.g. "Crossgate")

	// Window is the validation tolerance in 30s steps either side of now.
	// Zero means totp.DefaultWindow.
	Window uint
}

func (s *MFAService) window() uint {
	if s.Window == 0 {
		return totp.DefaultWindow
	}
	return s.Window
}

// BeginSetup generates a candidate secret for the user and parks it in a
// setup challenge. Nothing is persisted yet.
func (s *MFAService) BeginSetup(ctx context.Context, userID string) (domain.MFAEnrollResponse, error) {
	enrollment, err := s.Store.MFAEnrollments().GetEnrollment(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.MFAEnrollResponse{}, fmt.Errorf("failed to read enrollment: %w", err)
	}
	if err == nil && enrollment.Enabled {
		return domain.MFAEnrollResponse{}, ErrMFAAlreadyEnabled
	}

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.MFAEnrollResponse{}, fmt.Errorf("failed to read user: %w", err)
	}

	secret, err := totp.GenerateSecret()
	if err != nil {
		return domain.MFAEnrollResponse{}, fmt.Errorf("failed to generate secret: %w", err)
	}

	enroll, err := totp.NewEnrollment(s.Issuer, user.Username, secret)
	if err != nil {
		return domain.MFAEnrollResponse{}, fmt.Errorf("failed to build enrollment: %w", err)
	}

	challenge, err := s.IssueChallenge(ctx, userID, domain.ChallengeSetup, secret)
	if err != nil {
		return domain.MFAEnrollResponse{}, err
	}

	return domain.MFAEnrollResponse{
		ChallengeID: challenge.ID,
		Secret:      enroll.Secret,
		URL:         enroll.URL,
		QRPNG:       enroll.QRPNG,
	}, nil
}

// ConfirmSetup proves possession of the pending secret. On the first valid
// code the enrollment is persisted enabled; until then the credential store
// is untouched.
func (s *MFAService) ConfirmSetup(ctx context.Context, userID, challengeID, code string) error {
	challenge, err := s.getChallenge(ctx, challengeID, domain.ChallengeSetup)
	if err != nil {
		return err
	}
	if challenge.UserID != userID {
		return ErrChallengeNotFound
	}

	if err := s.checkCode(ctx, challenge, code); err != nil {
		return err
	}

	if err := s.Store.MFAEnrollments().EnableEnrollment(ctx, userID, challenge.Secret); err != nil {
		return fmt.Errorf("failed to persist enrollment: %w", err)
	}
	s.deleteChallenge(ctx, challengeID)
	return nil
}

// VerifyLogin answers a login-time challenge (password or QR flavoured).
// Returns the consumed challenge so the caller knows who logged in and how.
func (s *MFAService) VerifyLogin(ctx context.Context, challengeID, code string) (domain.MFAChallenge, error) {
	challenge, err := s.getChallenge(ctx, challengeID, domain.ChallengeLogin, domain.ChallengeQR)
	if err != nil {
		return domain.MFAChallenge{}, err
	}

	if err := s.checkCode(ctx, challenge, code); err != nil {
		return domain.MFAChallenge{}, err
	}

	s.deleteChallenge(ctx, challengeID)
	return challenge, nil
}

// Disable turns MFA off for a user after one last valid code.
func (s *MFAService) Disable(ctx context.Context, userID, code string) error {
	enrollment, err := s.Store.MFAEnrollments().GetEnrollment(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrMFANotEnabled
	}
	if err != nil {
		return fmt.Errorf("failed to read enrollment: %w", err)
	}
	if !enrollment.Enabled {
		return ErrMFANotEnabled
	}

	ok, err := totp.Validate(enrollment.Secret, code, time.Now(), s.window())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}

	if err := s.Store.MFAEnrollments().DisableEnrollment(ctx, userID); err != nil {
		return fmt.Errorf("failed to disable enrollment: %w", err)
	}
	return nil
}

// IssueChallenge mints a registry-backed challenge carrying the secret the
// answer must match. Used by setup, password login and the QR flow.
func (s *MFAService) IssueChallenge(ctx context.Context, userID string, kind domain.ChallengeKind, secret string) (domain.MFAChallenge, error) {
	now := time.Now()
	challenge := domain.MFAChallenge{
		ID:        idx.New().String(),
		UserID:    userID,
		Kind:      kind,
		Secret:    secret,
		CreatedAt: now,
		ExpiresAt: now.Add(domain.ChallengeValidity),
	}
	if err := s.Registry.Challenges().CreateChallenge(ctx, challenge); err != nil {
		return domain.MFAChallenge{}, fmt.Errorf("failed to create mfa challenge: %w", err)
	}
	return challenge, nil
}

func (s *MFAService) getChallenge(ctx context.Context, challengeID string, kinds ...domain.ChallengeKind) (domain.MFAChallenge, error) {
	challenge, err := s.Registry.Challenges().GetChallenge(ctx, challengeID)
	if errors.Is(err, registry.ErrNotFound) {
		return domain.MFAChallenge{}, ErrChallengeNotFound
	}
	if err != nil {
		return domain.MFAChallenge{}, err
	}

	kindOK := false
	for _, kind := range kinds {
		if challenge.Kind == kind {
			kindOK = true
			break
		}
	}
	if !kindOK {
		return domain.MFAChallenge{}, ErrChallengeNotFound
	}
	if challenge.Attempts >= domain.MaxChallengeAttempts {
		s.deleteChallenge(ctx, challengeID)
		return domain.MFAChallenge{}, ErrTooManyAttempts
	}
	return challenge, nil
}

// checkCode validates one code submission against a challenge, burning an
// attempt on a wrong code.
func (s *MFAService) checkCode(ctx context.Context, challenge domain.MFAChallenge, code string) error {
	ok, err := totp.Validate(challenge.Secret, code, time.Now(), s.window())
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	updated, incErr := s.Registry.Challenges().IncrementChallengeAttempts(ctx, challenge.ID)
	if incErr == nil && updated.Attempts >= domain.MaxChallengeAttempts {
		s.deleteChallenge(ctx, challenge.ID)
		return ErrTooManyAttempts
	}
	return ErrInvalidCode
}

func (s *MFAService) deleteChallenge(ctx context.Context, challengeID string) {
	_ = s.Registry.Challenges().DeleteChallenge(ctx, challengeID)
}
