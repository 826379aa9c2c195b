package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/crossgate-dev/crossgate/internal/auth/domain"
	"github.com/crossgate-dev/crossgate/internal/auth/store"
	"github.com/crossgate-dev/crossgate/pkg/idx"
)

// StaticIdentityProvider is the built-in IdentityProvider: a fixed set of
// username/password pairs seeded from configuration. Deployments fronting a
// real directory supply their own IdentityProvider instead.
type StaticIdentityProvider struct {
	Store store.Store

	passwords map[string][32]byte
}

// SeedUser is one configured account.
type SeedUser struct {
	Username      string
	Password      string
	PreferredName string
}

// ParseSeedUsers parses the AUTH_SEED_USERS format:
// "username:password[:preferred name]" entries separated by commas.
func ParseSeedUsers(raw string) ([]SeedUser, error) {
	var users []SeedUser
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid seed user entry %q", entry)
		}
		u := SeedUser{Username: parts[0], Password: parts[1], PreferredName: parts[0]}
		if len(parts) == 3 && parts[2] != "" {
			u.PreferredName = parts[2]
		}
		users = append(users, u)
	}
	return users, nil
}

// NewStaticIdentityProvider ensures each seeded user exists in the store and
// keeps password digests in memory for verification.
func NewStaticIdentityProvider(ctx context.Context, st store.Store, users []SeedUser) (*StaticIdentityProvider, error) {
	p := &StaticIdentityProvider{
		Store:     st,
		passwords: make(map[string][32]byte, len(users)),
	}

	for _, u := range users {
		p.passwords[u.Username] = sha256.Sum256([]byte(u.Password))

		_, err := st.Users().GetUserByUsername(ctx, u.Username)
		if errors.Is(err, store.ErrNotFound) {
			err = st.Users().CreateUser(ctx, domain.User{
				ID:            idx.New().String(),
				Username:      u.Username,
				PreferredName: u.PreferredName,
			})
		}
		if err != nil {
			return nil, fmt.Errorf("failed to seed user %q: %w", u.Username, err)
		}
	}
	return p, nil
}

// VerifyPassword checks the submitted password in constant time. Unknown
// users and wrong passwords are indistinguishable to the caller.
func (p *StaticIdentityProvider) VerifyPassword(ctx context.Context, username, password string) (domain.User, error) {
	want, ok := p.passwords[username]
	got := sha256.Sum256([]byte(password))
	if subtle.ConstantTimeCompare(want[:], got[:]) != 1 || !ok {
		return domain.User{}, ErrInvalidCredentials
	}

	user, err := p.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to read user: %w", err)
	}
	return user, nil
}
