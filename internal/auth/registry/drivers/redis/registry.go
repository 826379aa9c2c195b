// Package redis implements the Registry on a redis backend. Login sessions
// and MFA challenges are stored as JSON values with native TTLs; session
// state changes fan out over pub/sub so every node sees approvals made on
// any other node.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crossgate-dev/crossgate/internal/auth/domain"
	"github.com/crossgate-dev/crossgate/internal/auth/registry"
)

const (
	sessionKeyPrefix   = "qrsession:"
	challengeKeyPrefix = "mfachallenge:"
	eventChannelPrefix = "qrsession.events."
)

// finalizeScript compares the stored session's status against "pending" and
// swaps in the terminal record only if it still matches, preserving the
// remaining TTL. Return codes: 1 swapped, 0 not pending, -1 missing.
var finalizeScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
  return -1
end
local decoded = cjson.decode(current)
if decoded.status ~= "pending" then
  return 0
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ttl)
else
  redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

// incrAttemptsScript bumps the attempts counter inside the stored challenge
// JSON without disturbing its TTL, and returns the updated document.
var incrAttemptsScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
  return false
end
local decoded = cjson.decode(current)
decoded.attempts = decoded.attempts + 1
local updated = cjson.encode(decoded)
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  redis.call("SET", KEYS[1], updated, "PX", ttl)
else
  redis.call("SET", KEYS[1], updated)
end
return updated
`)

// deleteScript removes a session and returns the document it held, so the
// tombstone reflects the state at the moment of deletion rather than a
// snapshot from a separate earlier read.
var deleteScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
  return false
end
redis.call("DEL", KEYS[1])
return current
`)

type Registry struct {
	cli *redis.Client
}

var _ registry.Registry = (*Registry)(nil)

// New connects to redis at the given URL (redis://...) and verifies the
// connection with a ping.
func New(ctx context.Context, url string) (*Registry, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Registry{cli: cli}, nil
}

// NewFromClient wraps an existing client. The caller keeps ownership and
// Close becomes a no-op; used by tests that share one container connection.
func NewFromClient(cli *redis.Client) *Registry {
	return &Registry{cli: cli}
}

func (r *Registry) Sessions() registry.Sessions     { return &sessionRepo{cli: r.cli} }
func (r *Registry) Challenges() registry.Challenges { return &challengeRepo{cli: r.cli} }

func (r *Registry) Ping(ctx context.Context) error {
	if err := r.cli.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", registry.ErrUnavailable, err)
	}
	return nil
}

func (r *Registry) Close() error { return r.cli.Close() }

func wrapErr(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", registry.ErrUnavailable, err)
}

// sessionEnvelope is the pub/sub wire format for session state changes.
type sessionEnvelope struct {
	Session domain.LoginSession `json:"session"`
	Deleted bool                `json:"deleted,omitempty"`
}

type sessionRepo struct {
	cli *redis.Client
}

func sessionKey(id string) string     { return sessionKeyPrefix + id }
func sessionChannel(id string) string { return eventChannelPrefix + id }

func (s *sessionRepo) CreateSession(ctx context.Context, session domain.LoginSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	ok, err := s.cli.SetNX(ctx, sessionKey(session.SessionID), raw, ttl).Result()
	if err != nil {
		return wrapErr(err)
	}
	if !ok {
		return registry.ErrAlreadyExists
	}
	return nil
}

func (s *sessionRepo) GetSession(ctx context.Context, sessionID string) (domain.LoginSession, error) {
	raw, err := s.cli.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return domain.LoginSession{}, registry.ErrNotFound
	}
	if err != nil {
		return domain.LoginSession{}, wrapErr(err)
	}

	var session domain.LoginSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.LoginSession{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

func (s *sessionRepo) FinalizeSession(ctx context.Context, session domain.LoginSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}

	res, err := finalizeScript.Run(ctx, s.cli, []string{sessionKey(session.SessionID)}, raw).Int()
	if err != nil {
		return wrapErr(err)
	}
	switch res {
	case -1:
		return registry.ErrNotFound
	case 0:
		return registry.ErrNotPending
	}

	s.publish(ctx, session.SessionID, sessionEnvelope{Session: session})
	return nil
}

func (s *sessionRepo) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := deleteScript.Run(ctx, s.cli, []string{sessionKey(sessionID)}).Text()
	if err == redis.Nil {
		return registry.ErrNotFound
	}
	if err != nil {
		return wrapErr(err)
	}

	var session domain.LoginSession
	if err := json.Unmarshal([]byte(res), &session); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}

	s.publish(ctx, sessionID, sessionEnvelope{Session: session, Deleted: true})
	return nil
}

/// publish is best effort: a dropped event only delays watchers until their
// next poll, it never loses the state itself.
func (s *sessionRepo) publish(ctx context.Context, sessionID string, env sessionEnvelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	_ = s.cli.Publish(ctx, sessionChannel(sessionID), raw).Err()
}

func (s *sessionRepo) WatchSession(ctx context.Context, sessionID string) (<-chan registry.SessionEvent, error) {
	sub := s.cli.Subscribe(ctx, sessionChannel(sessionID))

	// Force the subscription onto the wire before returning, so no event
	// published after this call can be missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, wrapErr(err)
	}

	out := make(chan registry.SessionEvent, 1)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env sessionEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					continue
				}
				ev := registry.SessionEvent{Session: env.Session, Deleted: env.Deleted}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Deleted || ev.Session.Status != domain.SessionPending {
					return
				}
			}
		}
	}()
	return out, nil
}

// DeleteExpiredSessions is a no-op: redis expires session keys natively.
func (s *sessionRepo) DeleteExpiredSessions(ctx context.Context) error {
	return nil
}

type challengeRepo struct {
	cli *redis.Client
}

func challengeKey(id string) string { return challengeKeyPrefix + id }

func (c *challengeRepo) CreateChallenge(ctx context.Context, challenge domain.MFAChallenge) error {
	raw, err := json.Marshal(challenge)
	if err != nil {
		return err
	}
	ttl := time.Until(challenge.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("challenge already expired")
	}

	ok, err := c.cli.SetNX(ctx, challengeKey(challenge.ID), raw, ttl).Result()
	if err != nil {
		return wrapErr(err)
	}
	if !ok {
		return registry.ErrAlreadyExists
	}
	return nil
}

func (c *challengeRepo) GetChallenge(ctx context.Context, id string) (domain.MFAChallenge, error) {
	raw, err := c.cli.Get(ctx, challengeKey(id)).Bytes()
	if err == redis.Nil {
		return domain.MFAChallenge{}, registry.ErrNotFound
	}
	if err != nil {
		return domain.MFAChallenge{}, wrapErr(err)
	}

	var challenge domain.MFAChallenge
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return domain.MFAChallenge{}, fmt.Errorf("decode challenge: %w", err)
	}
	return challenge, nil
}

func (c *challengeRepo) IncrementChallengeAttempts(ctx context.Context, id string) (domain.MFAChallenge, error) {
	res, err := incrAttemptsScript.Run(ctx, c.cli, []string{challengeKey(id)}).Text()
	if err == redis.Nil {
		return domain.MFAChallenge{}, registry.ErrNotFound
	}
	if err != nil {
		return domain.MFAChallenge{}, wrapErr(err)
	}

	var challenge domain.MFAChallenge
	if err := json.Unmarshal([]byte(res), &challenge); err != nil {
		return domain.MFAChallenge{}, fmt.Errorf("decode challenge: %w", err)
	}
	return challenge, nil
}

func (c *challengeRepo) DeleteChallenge(ctx context.Context, id string) error {
	n, err := c.cli.Del(ctx, challengeKey(id)).Result()
	if err != nil {
		return wrapErr(err)
	}
	if n == 0 {
		return registry.ErrNotFound
	}
	return nil
}

// DeleteExpiredChallenges is a no-op: redis expires challenge keys natively.
func (c *challengeRepo) DeleteExpiredChallenges(ctx context.Context) error {
	return nil
}
