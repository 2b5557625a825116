package domain

import "time"

// User is an authenticated account
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"-"`
}

// Credentials is a stored user together with its password hash
type Credentials struct {
	User         User
	PasswordHash []byte
}
