package models

import "fmt"

// StateKind tags a SessionState.
type StateKind int

const (
	// StateUnresolved is the startup state before any verdict exists.
	StateUnresolved StateKind = iota
	// StateAnonymous means resolution finished and nobody is logged in.
	StateAnonymous
	// StateAuthenticated means resolution finished with an identity.
	StateAuthenticated
)

func (k StateKind) String() string {
	switch k {
	case StateUnresolved:
		return "unresolved"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("StateKind(%d)", int(k))
	}
}

// SessionState describes the current auth resolution.
//
// Guards must not treat Unresolved as Anonymous: doing so redirects to the
// login page and then corrects itself once the session restores.
type SessionState struct {
	Kind     StateKind
	Identity *Identity // set only when Kind is StateAuthenticated
}

// Unresolved returns the startup state.
func Unresolved() SessionState {
	return SessionState{Kind: StateUnresolved}
}

// Anonymous returns a resolved state without an identity.
func Anonymous() SessionState {
	return SessionState{Kind: StateAnonymous}
}

// Authenticated returns a resolved state carrying a copy of identity.
func Authenticated(identity Identity) SessionState {
	return SessionState{Kind: StateAuthenticated, Identity: &identity}
}

// IsResolved reports whether a verdict has been reached.
func (s SessionState) IsResolved() bool {
	return s.Kind != StateUnresolved
}

// IsAuthenticated reports whether the state carries an identity.
func (s SessionState) IsAuthenticated() bool {
	return s.Kind == StateAuthenticated && s.Identity != nil
}

func (s SessionState) String() string {
	if s.IsAuthenticated() {
		return fmt.Sprintf("authenticated(%s)", s.Identity.Email)
	}
	return s.Kind.String()
}
