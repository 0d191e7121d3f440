package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/blogify/internal/models"
)

// EventKind is the kind of an identity provider notification.
type EventKind string

const (
	// EventInitial is broadcast by the provider when a subscriber attaches.
	// It duplicates what CurrentSession returns at startup.
	EventInitial        EventKind = "initial"
	EventSignedIn       EventKind = "signed_in"
	EventSignedOut      EventKind = "signed_out"
	EventTokenRefreshed EventKind = "token_refreshed"
)

// Event is a single auth state notification. Session is nil when signed out.
type Event struct {
	Kind    EventKind
	Session *models.Session
}

// Provider is the identity provider as seen by the reconciler.
type Provider interface {
	// CurrentSession returns the persisted session available at startup, or nil when there is none.
	CurrentSession(ctx context.Context) (*models.Session, error)

	// Subscribe registers fn for auth events and returns a function that removes it.
	Subscribe(fn func(Event)) func()
}

// ProfileStore resolves the full Identity for a session subject.
type ProfileStore interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Identity, error)
}
