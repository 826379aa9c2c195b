package service

import (
	"fmt"
	"time"

	"github.com/crossgate-dev/crossgate/internal/auth/domain"
	"github.com/crossgate-dev/crossgate/pkg/idx"
	"github.com/crossgate-dev/crossgate/pkg/jwtx"
)

// AMR values for the login flavours that can yield tokens.
const (
	AMRPassword = "pwd"
	AMROTP      = "otp"
	AMRQR       = "qr"
)

// TokenService mints Ed25519-signed access tokens for completed logins.
type TokenService struct {
	Signer    *jwtx.Signer
	Issuer    string
	AccessTTL time.Duration
}

// Issue signs an access token for the user, recording how they
// authenticated in the amr claim.
func (s *TokenService) Issue(user domain.User, amr []string) (domain.TokenPair, error) {
	ttl := s.AccessTTL
	if ttl <= 0 {
		ttl = jwtx.DefaultAccessTokenTTL
	}

	sid := idx.New().String()
	claims := jwtx.NewAccessClaims(user.ID, sid, user.Username, s.Issuer, amr, ttl, time.Now())

	token, err := s.Signer.Sign(claims)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	return domain.TokenPair{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
	}, nil
}
