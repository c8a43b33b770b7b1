package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/iaengine/backend/internal/model/chat"
)

// DefaultTTL is the lifetime of a session when none is configured.
const DefaultTTL = 8 * time.Hour

// Store keeps logged-in sessions in memory. A restart invalidates all of them.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	ttl      time.Duration
	now      func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store whose sessions live for ttl.
func NewStore(ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		sessions: make(map[string]chat.Session),
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured session lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Create provisions a session with a fresh random token.
func (s *Store) Create() chat.Session {
	now := s.now().UTC()
	session := chat.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session
}

// Get returns the session for token if it exists and has not expired.
// Expired sessions are removed on lookup.
func (s *Store) Get(token string) (chat.Session, bool) {
	if token == "" {
		return chat.Session{}, false
	}

	s.mu.RLock()
	session, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return chat.Session{}, false
	}

	if !session.ValidAt(s.now()) {
		s.mu.Lock()
		if current, still := s.sessions[token]; still && !current.ValidAt(s.now()) {
			delete(s.sessions, token)
		}
		s.mu.Unlock()
		return chat.Session{}, false
	}

	return session, true
}

// Destroy removes the session unconditionally.
func (s *Store) Destroy(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// Sweep drops every expired session and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, session := range s.sessions {
		if !session.ValidAt(now) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired ones included until swept.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RunJanitor sweeps the store every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				slog.Debug("expired sessions swept", "removed", removed, "remaining", s.Len())
			}
		}
	}
}
