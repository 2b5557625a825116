package domain

import "errors"

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrInvalidMode        = errors.New("invalid game mode")
	ErrInvalidScore       = errors.New("invalid score value")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrLockTimeout        = errors.New("lock acquisition timeout")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrUnauthorized       = errors.New("not authenticated")
	ErrInternalError      = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrPlayerNotFound)
}

// IsValidationError reports whether err was caused by bad caller input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidMode) || errors.Is(err, ErrInvalidScore) || errors.Is(err, ErrInvalidRequest)
}

// IsUnavailable reports whether err means the backing store could not serve the request
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrLockTimeout)
}
