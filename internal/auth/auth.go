// Package auth resolves callers to users: signup, password login and opaque
// bearer sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/snake-arena/internal/config"
	"github.com/snake-arena/internal/domain"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 20
	minPasswordLen = 6
)

// UserStore persists accounts
type UserStore interface {
	Create(ctx context.Context, email, username string, passwordHash []byte) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.Credentials, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// SessionStore maps bearer tokens to user IDs
type SessionStore interface {
	Save(ctx context.Context, token, userID string, ttl time.Duration) error
	Lookup(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

// Service authenticates users
type Service struct {
	users    UserStore
	sessions SessionStore
	ttl      time.Duration
	cost     int
	logger   *slog.Logger
}

// NewService creates a new auth service
func NewService(users UserStore, sessions SessionStore, cfg *config.AuthConfig, logger *slog.Logger) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		ttl:      cfg.SessionTTL,
		cost:     cfg.BcryptCost,
		logger:   logger,
	}
}

// Signup creates an account
func (s *Service) Signup(ctx context.Context, email, username, password string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)

	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", domain.ErrInvalidRequest)
	}
	if n := len([]rune(username)); n < minUsernameLen || n > maxUsernameLen {
		return nil, fmt.Errorf("%w: username must be %d-%d characters", domain.ErrInvalidRequest, minUsernameLen, maxUsernameLen)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidRequest, minPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user, err := s.users.Create(ctx, email, username, hash)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user signed up", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login checks credentials and opens a session. The returned token is
// presented as "Authorization: Bearer <token>".
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	creds, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", domain.ErrInvalidCredentials
		}
		return "", fmt.Errorf("looking up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(creds.PasswordHash, []byte(password)); err != nil {
		return "", domain.ErrInvalidCredentials
	}

	token := uuid.NewString()
	if err := s.sessions.Save(ctx, token, creds.User.ID, s.ttl); err != nil {
		return "", fmt.Errorf("saving session: %w", err)
	}
	return token, nil
}

// Logout ends the session behind token
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Authenticate resolves a bearer token to its user. A valid session whose
// user no longer exists yields domain.ErrUserNotFound.
func (s *Service) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized
	}

	userID, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return nil, err
		}
		return nil, fmt.Errorf("looking up session: %w", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user, nil
}
