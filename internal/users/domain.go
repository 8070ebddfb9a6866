// Package users handles accounts and API token authentication.
package users

import (
	"errors"
	"strings"
	"time"
)

// User is an application account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Token is an issued API credential. Only the bcrypt hash of the secret is
// stored; the plaintext is returned once at issue time.
type Token struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"userId"`
	Label      string     `json:"label"`
	SecretHash string     `json:"-"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Expired reports whether the token is past its expiry.
func (t Token) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// CreateUserInput captures validation rules for new accounts.
type CreateUserInput struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// Validate applies the minimum account rules.
func (in CreateUserInput) Validate() error {
	if !strings.Contains(in.Email, "@") {
		return errors.New("users: valid email required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("users: name required")
	}
	if len(in.Password) < 8 {
		return errors.New("users: password must be at least 8 characters")
	}
	return nil
}

var (
	// ErrInvalidCredentials covers unknown accounts, bad passwords and
	// inactive users alike, so callers cannot probe which one failed.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrUserNotFound indicates a missing account.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrTokenInvalid covers malformed, unknown, revoked and expired tokens.
	ErrTokenInvalid = errors.New("users: token invalid")
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("users: email already registered")
)
