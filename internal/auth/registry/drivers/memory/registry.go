// Package memory provides an in-process Registry driver backed by maps.
// It is used by unit tests and single-node deployments where redis is
// overkill. All operations are safe for concurrent use.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/crossgate-dev/crossgate/internal/auth/domain"
	"github.com/crossgate-dev/crossgate/internal/auth/registry"
)

type Registry struct {
	mu         sync.Mutex
	sessions   map[string]domain.LoginSession
	challenges map[string]domain.MFAChallenge
	watchers   map[string][]chan registry.SessionEvent

	now func() time.Time
}

var _ registry.Registry = (*Registry)(nil)

func New() *Registry {
	return &Registry{
		sessions:   make(map[string]domain.LoginSession),
		challenges: make(map[string]domain.MFAChallenge),
		watchers:   make(map[string][]chan registry.SessionEvent),
		now:        time.Now,
	}
}

// NewWithClock is a test hook that pins the registry's notion of now.
func NewWithClock(now func() time.Time) *Registry {
	r := New()
	r.now = now
	return r
}

func (r *Registry) Sessions() registry.Sessions     { return (*sessionRepo)(r) }
func (r *Registry) Challenges() registry.Challenges { return (*challengeRepo)(r) }

func (r *Registry) Ping(ctx context.Context) error { return ctx.Err() }

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, chans := range r.watchers {
		for _, ch := range chans {
			close(ch)
		}
		delete(r.watchers, id)
	}
	return nil
}

// notifyLocked fans an event out to every watcher of the session. Watchers
// that have fallen behind get their stale buffered event replaced so the
// channel always holds the latest state. Callers must hold r.mu.
func (r *Registry) notifyLocked(sessionID string, ev registry.SessionEvent) {
	for _, ch := range r.watchers[sessionID] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

type sessionRepo Registry

func (s *sessionRepo) CreateSession(ctx context.Context, session domain.LoginSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[session.SessionID]; ok && !existing.Expired(s.now()) {
		return registry.ErrAlreadyExists
	}
	s.sessions[session.SessionID] = session
	return nil
}

// GetSession returns the stored record even past its expiry: callers need
// to tell an expired session apart from a missing one, and whoever first
// reads an expired record is responsible for deleting it.
func (s *sessionRepo) GetSession(ctx context.Context, sessionID string) (domain.LoginSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.LoginSession{}, registry.ErrNotFound
	}
	return session, nil
}

func (s *sessionRepo) FinalizeSession(ctx context.Context, session domain.LoginSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[session.SessionID]
	if !ok || stored.Expired(s.now()) {
		return registry.ErrNotFound
	}
	if stored.Status != domain.SessionPending {
		return registry.ErrNotPending
	}

	s.sessions[session.SessionID] = session
	(*Registry)(s).notifyLocked(session.SessionID, registry.SessionEvent{Session: session})
	return nil
}

func (s *sessionRepo) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return registry.ErrNotFound
	}
	delete(s.sessions, sessionID)
	(*Registry)(s).notifyLocked(sessionID, registry.SessionEvent{Session: session, Deleted: true})
	return nil
}

func (s *sessionRepo) WatchSession(ctx context.Context, sessionID string) (<-chan registry.SessionEvent, error) {
	s.mu.Lock()
	ch := make(chan registry.SessionEvent, 1)
	s.watchers[sessionID] = append(s.watchers[sessionID], ch)
	s.mu.Unlock()

	out := make(chan registry.SessionEvent, 1)
	go func() {
		defer close(out)
		defer s.unwatch(sessionID, ch)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
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

func (s *sessionRepo) unwatch(sessionID string, ch chan registry.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chans := s.watchers[sessionID]
	for i, c := range chans {
		if c == ch {
			s.watchers[sessionID] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(s.watchers[sessionID]) == 0 {
		delete(s.watchers, sessionID)
	}
}

func (s *sessionRepo) DeleteExpiredSessions(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			(*Registry)(s).notifyLocked(id, registry.SessionEvent{Session: session, Deleted: true})
		}
	}
	return nil
}

type challengeRepo Registry

func (c *challengeRepo) CreateChallenge(ctx context.Context, challenge domain.MFAChallenge) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.challenges[challenge.ID]; ok && !existing.Expired(c.now()) {
		return registry.ErrAlreadyExists
	}
	c.challenges[challenge.ID] = challenge
	return nil
}

func (c *challengeRepo) GetChallenge(ctx context.Context, id string) (domain.MFAChallenge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	challenge, ok := c.challenges[id]
	if !ok || challenge.Expired(c.now()) {
		return domain.MFAChallenge{}, registry.ErrNotFound
	}
	return challenge, nil
}

func (c *challengeRepo) IncrementChallengeAttempts(ctx context.Context, id string) (domain.MFAChallenge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	challenge, ok := c.challenges[id]
	if !ok || challenge.Expired(c.now()) {
		return domain.MFAChallenge{}, registry.ErrNotFound
	}
	challenge.Attempts++
	c.challenges[id] = challenge
	return challenge, nil
}

func (c *challengeRepo) DeleteChallenge(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.challenges[id]; !ok {
		return registry.ErrNotFound
	}
	delete(c.challenges, id)
	return nil
}

func (c *challengeRepo) DeleteExpiredChallenges(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, challenge := range c.challenges {
		if challenge.Expired(now) {
			delete(c.challenges, id)
		}
	}
	return nil
}
