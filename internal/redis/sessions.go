package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/snake-arena/internal/domain"
)

// SessionStore keeps bearer tokens as expiring string keys
type SessionStore struct {
	client redis.Cmdable
	prefix string
}

// NewSessionStore creates a session store under the given key prefix
func NewSessionStore(client redis.Cmdable, prefix string) *SessionStore {
	return &SessionStore{client: client, prefix: prefix}
}

func (s *SessionStore) sessionKey(token string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, token)
}

// Save stores token for userID; Redis expires it after ttl
func (s *SessionStore) Save(ctx context.Context, token, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.sessionKey(token), userID, ttl).Err(); err != nil {
		return unavailable("saving session", err)
	}
	return nil
}

// Lookup returns the user ID behind token
func (s *SessionStore) Lookup(ctx context.Context, token string) (string, error) {
	userID, err := s.client.Get(ctx, s.sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrUnauthorized
	}
	if err != nil {
		return "", unavailable("looking up session", err)
	}
	return userID, nil
}

// Delete removes token
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.sessionKey(token)).Err(); err != nil {
		return unavailable("deleting session", err)
	}
	return nil
}
