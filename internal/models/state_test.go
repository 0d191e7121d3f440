package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSessionState(t *testing.T) {
	require.False(t, Unresolved().IsResolved())
	require.True(t, Anonymous().IsResolved())
	require.False(t, Anonymous().IsAuthenticated())

	id := Identity{ID: uuid.New(), Name: "Jane", Email: "jane@example.com"}
	st := Authenticated(id)
	require.True(t, st.IsResolved())
	require.True(t, st.IsAuthenticated())
	require.Equal(t, "authenticated(jane@example.com)", st.String())

	// the state holds a copy
	id.Name = "changed"
	require.Equal(t, "Jane", st.Identity.Name)
}

func TestDisplayNameFromEmail(t *testing.T) {
	tests := []struct {
		email    string
		expected string
	}{
		{email: "jane.doe@example.com", expected: "jane.doe"},
		{email: "no-at-sign", expected: "no-at-sign"},
		{email: "@example.com", expected: "@example.com"},
		{email: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			require.Equal(t, tt.expected, DisplayNameFromEmail(tt.email))
		})
	}
}

func TestFallbackIdentity(t *testing.T) {
	issued := time.Now().Add(-time.Minute)
	s := &Session{Subject: uuid.New(), Email: "writer@blog.dev", IssuedAt: issued}

	id := FallbackIdentity(s)
	require.Equal(t, s.Subject, id.ID)
	require.Equal(t, "writer", id.Name)
	require.Equal(t, "writer@blog.dev", id.Email)
	require.Equal(t, issued, id.CreatedAt)

	s.Name = "Writer"
	require.Equal(t, "Writer", FallbackIdentity(s).Name)
}
