package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/snake-arena/internal/domain"
)

const (
	emailIndex    = "users_email_lower_key"
	usernameIndex = "users_username_key"

	codeUniqueViolation = "23505"
)

// UserRepository stores accounts in the users table
type UserRepository struct {
	q querier
}

// NewUserRepository creates a user repository on the repository's pool
func NewUserRepository(repo *Repository) *UserRepository {
	return &UserRepository{q: repo.pool}
}

// Create inserts a user. Duplicate emails (case-insensitive) and usernames are rejected.
func (r *UserRepository) Create(ctx context.Context, email, username string, passwordHash []byte) (*domain.User, error) {
	var (
		id   int64
		user = domain.User{Username: username, Email: email}
	)
	err := r.q.QueryRow(ctx,
		`INSERT INTO users (email, username, password_hash) VALUES ($1, $2, $3) RETURNING id, created_at`,
		email, username, passwordHash,
	).Scan(&id, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			if pgErr.ConstraintName == usernameIndex {
				return nil, domain.ErrUsernameTaken
			}
			return nil, domain.ErrEmailTaken
		}
		return nil, unavailable("creating user", err)
	}
	user.ID = strconv.FormatInt(id, 10)
	return &user, nil
}

// GetByEmail returns the user and password hash registered under email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.Credentials, error) {
	var (
		id    int64
		creds domain.Credentials
	)
	err := r.q.QueryRow(ctx,
		`SELECT id, email, username, password_hash, created_at FROM users WHERE LOWER(email) = LOWER($1)`,
		email,
	).Scan(&id, &creds.User.Email, &creds.User.Username, &creds.PasswordHash, &creds.User.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, unavailable("getting user by email", err)
	}
	creds.User.ID = strconv.FormatInt(id, 10)
	return &creds, nil
}

// GetByID returns a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	numeric, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: id %q", domain.ErrUserNotFound, id)
	}

	user := domain.User{ID: id}
	err = r.q.QueryRow(ctx,
		`SELECT email, username, created_at FROM users WHERE id = $1`,
		numeric,
	).Scan(&user.Email, &user.Username, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, unavailable("getting user by id", err)
	}
	return &user, nil
}
