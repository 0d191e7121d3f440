package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/blogify/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)

// User is an Identity plus its password credential.
// PasswordHash is empty for users that only sign in through OAuth.
type User struct {
	models.Identity
	PasswordHash []byte
}

// UserStore persists users. Implementations must be safe for concurrent use.
type UserStore interface {
	// Create stores a new user. Returns ErrUserAlreadyExists if the id or email is taken.
	Create(ctx context.Context, user *User) error

	// Get retrieves a user by ID.
	Get(ctx context.Context, id uuid.UUID) (*User, error)

	// GetByEmail retrieves a user by email, compared case-insensitively.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update replaces the mutable profile fields (name, avatar) of a user.
	Update(ctx context.Context, user *User) error
}

// Profiles adapts a UserStore to the profile lookup used by session reconciliation.
type Profiles struct {
	Users UserStore
}

// GetProfile returns the identity part of the user.
func (p Profiles) GetProfile(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	user, err := p.Users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	identity := user.Identity
	return &identity, nil
}
