package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snake-arena/internal/domain"
)

// UserStore is a thread-safe in-memory user table. IDs are random UUIDs so
// that sessions kept in an external store never resolve to a user created by
// a later process.
type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]domain.Credentials
	byEmail map[string]string
}

// NewUserStore creates an empty user store
func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[string]domain.Credentials),
		byEmail: make(map[string]string),
	}
}

// Create stores a new user. Emails are unique, case-insensitively.
func (s *UserStore) Create(ctx context.Context, email, username string, passwordHash []byte) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(email)
	if _, ok := s.byEmail[key]; ok {
		return nil, domain.ErrEmailTaken
	}
	for _, c := range s.byID {
		if c.User.Username == username {
			return nil, domain.ErrUsernameTaken
		}
	}

	user := domain.User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		CreatedAt: time.Now(),
	}

	s.byID[user.ID] = domain.Credentials{User: user, PasswordHash: passwordHash}
	s.byEmail[key] = user.ID
	return &user, nil
}

// GetByEmail returns the user and password hash registered under email
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	creds := s.byID[id]
	return &creds, nil
}

// GetByID returns a user by ID
func (s *UserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	user := creds.User
	return &user, nil
}

// Delete removes a user; sessions that point at it stop resolving
func (s *UserStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, ok := s.byID[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	delete(s.byID, id)
	delete(s.byEmail, strings.ToLower(creds.User.Email))
	return nil
}
