package auth

import (
	"context"

	"github.com/wolfeidau/blogify/internal/models"
)

type contextKey int

const (
	sessionContextKey contextKey = iota
)

// WithSession returns a copy of ctx carrying the verified session state.
func WithSession(ctx context.Context, state models.SessionState) context.Context {
	return context.WithValue(ctx, sessionContextKey, state)
}

// SessionFromContext extracts the session state attached by the gate.
// Returns false if the request never passed through the gate.
func SessionFromContext(ctx context.Context) (models.SessionState, bool) {
	state, ok := ctx.Value(sessionContextKey).(models.SessionState)
	return state, ok
}
