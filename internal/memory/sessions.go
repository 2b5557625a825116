package memory

import (
	"context"
	"sync"
	"time"

	"github.com/snake-arena/internal/domain"
)

type session struct {
	userID    string
	expiresAt time.Time
}

// SessionStore maps opaque tokens to user IDs with expiry
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]session
	now      func() time.Time
}

// NewSessionStore creates an empty session store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]session),
		now:      time.Now,
	}
}

// Save stores token for userID until ttl elapses
func (s *SessionStore) Save(ctx context.Context, token, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = session{userID: userID, expiresAt: s.now().Add(ttl)}
	return nil
}

// Lookup returns the user ID behind token
func (s *SessionStore) Lookup(ctx context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return "", domain.ErrUnauthorized
	}
	if !s.now().Before(sess.expiresAt) {
		delete(s.sessions, token)
		return "", domain.ErrUnauthorized
	}
	return sess.userID, nil
}

// Delete forgets token. Unknown tokens are ignored.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}
