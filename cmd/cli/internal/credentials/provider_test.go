package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/blogify/internal/auth"
	"github.com/wolfeidau/blogify/internal/models"
	"github.com/wolfeidau/blogify/internal/session"
)

const testServer = "https://blog.dev"

func issueToken(t *testing.T, ttl time.Duration) (string, models.Identity) {
	t.Helper()

	sessions, err := auth.NewCookieSessions([]byte("test-secret-key-min-32-bytes-long!!"))
	require.NoError(t, err)

	identity := models.Identity{ID: uuid.New(), Name: "Ada", Email: "ada@blog.dev"}
	token, _, err := sessions.Issue(identity, ttl)
	require.NoError(t, err)

	return token, identity
}

func newTestProvider(t *testing.T) (*Provider, *Store) {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	return NewProvider(store, testServer), store
}

func TestProvider_CurrentSession(t *testing.T) {
	ctx := context.Background()

	t.Run("no file", func(t *testing.T) {
		p, _ := newTestProvider(t)

		sess, err := p.CurrentSession(ctx)
		require.NoError(t, err)
		require.Nil(t, sess)
	})

	t.Run("stored token", func(t *testing.T) {
		p, store := newTestProvider(t)
		token, identity := issueToken(t, time.Hour)
		require.NoError(t, store.SaveToken(testServer, token))

		sess, err := p.CurrentSession(ctx)
		require.NoError(t, err)
		require.NotNil(t, sess)
		require.Equal(t, identity.ID, sess.Subject)
		require.Equal(t, "ada@blog.dev", sess.Email)
	})

	t.Run("expired token", func(t *testing.T) {
		p, store := newTestProvider(t)
		token, _ := issueToken(t, time.Hour)
		require.NoError(t, store.SaveToken(testServer, token))

		p.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

		sess, err := p.CurrentSession(ctx)
		require.NoError(t, err)
		require.Nil(t, sess)
	})

	t.Run("unreadable token", func(t *testing.T) {
		p, store := newTestProvider(t)
		require.NoError(t, store.SaveToken(testServer, "garbage"))

		_, err := p.CurrentSession(ctx)
		require.ErrorIs(t, err, auth.ErrInvalidSession)
	})
}

func TestProvider_Events(t *testing.T) {
	p, _ := newTestProvider(t)

	var events []session.Event
	unsubscribe := p.Subscribe(func(ev session.Event) {
		events = append(events, ev)
	})

	require.Len(t, events, 1)
	require.Equal(t, session.EventInitial, events[0].Kind)
	require.Nil(t, events[0].Session)

	token, identity := issueToken(t, time.Hour)
	sess, err := p.SignIn(token)
	require.NoError(t, err)
	require.Equal(t, identity.ID, sess.Subject)

	require.Len(t, events, 2)
	require.Equal(t, session.EventSignedIn, events[1].Kind)
	require.Equal(t, identity.ID, events[1].Session.Subject)

	require.NoError(t, p.SignOut())
	require.Len(t, events, 3)
	require.Equal(t, session.EventSignedOut, events[2].Kind)

	unsubscribe()
	_, err = p.SignIn(token)
	require.NoError(t, err)
	require.Len(t, events, 3)
}

func TestProvider_SignInRejectsGarbage(t *testing.T) {
	p, store := newTestProvider(t)

	_, err := p.SignIn("garbage")
	require.Error(t, err)

	_, err = store.Token(testServer)
	require.ErrorIs(t, err, ErrNotLoggedIn)
}

type staticProfiles struct {
	identity *models.Identity
	err      error
}

func (s staticProfiles) GetProfile(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	return s.identity, s.err
}

func TestProvider_WithReconciler(t *testing.T) {
	p, store := newTestProvider(t)
	token, identity := issueToken(t, time.Hour)
	require.NoError(t, store.SaveToken(testServer, token))

	avatar := "https://blog.dev/ada.png"
	profile := identity
	profile.AvatarURL = &avatar

	st := session.NewStore()
	r := session.NewReconciler(st, p, staticProfiles{identity: &profile})
	r.Start(context.Background())
	defer r.Stop()

	snap := st.Snapshot()
	require.False(t, snap.Loading)
	require.True(t, snap.State.IsAuthenticated())
	require.Equal(t, &avatar, snap.State.Identity.AvatarURL)

	require.NoError(t, p.SignOut())
	require.False(t, st.Get().IsAuthenticated())
	require.True(t, st.Get().IsResolved())
}
