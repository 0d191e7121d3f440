package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity is the authenticated principal's profile.
// The backend owns the record; the front end only caches a copy.
type Identity struct {
	ID        uuid.UUID `json:"id"` // UUIDv7, immutable
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL *string   `json:"profile_picture_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayNameFromEmail returns the local part of an email address.
// Returns the input unchanged when it has no "@".
func DisplayNameFromEmail(email string) string {
	local, _, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return email
	}
	return local
}

// FallbackIdentity builds a minimal Identity from the claims carried by a session.
// It is used when the profile lookup fails after a session was restored.
func FallbackIdentity(s *Session) Identity {
	name := s.Name
	if name == "" {
		name = DisplayNameFromEmail(s.Email)
	}

	return Identity{
		ID:        s.Subject,
		Name:      name,
		Email:     s.Email,
		CreatedAt: s.IssuedAt,
	}
}
