package models

import (
	"time"

	"github.com/google/uuid"
)

// Session holds the claims embedded in a user's session cookie.
// Everything needed to gate a request lives in the signed token, so the edge
// never calls the backend to decide if a caller is logged in.
type Session struct {
	TokenID   string    // base58 random id, the JWT "jti"
	Subject   uuid.UUID // Identity.ID
	Email     string
	Name      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the session has expired at now.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
