package commands

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/blogify/cmd/cli/internal/credentials"
	"github.com/wolfeidau/blogify/internal/api"
	"github.com/wolfeidau/blogify/internal/auth"
	"github.com/wolfeidau/blogify/internal/login"
	"github.com/wolfeidau/blogify/internal/store/memory"
	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	sessions, err := auth.NewCookieSessions([]byte("test-secret-key-min-32-bytes-long!!"))
	require.NoError(t, err)

	users := memory.NewUserStore()

	loginHandler, err := login.NewHandler(users, sessions, time.Hour, login.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)

	apiHandler, err := api.NewHandler(users, "")
	require.NoError(t, err)

	mux := http.NewServeMux()
	loginHandler.Register(mux)
	apiHandler.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGlobals(t *testing.T, srv *httptest.Server) (*Globals, *bytes.Buffer) {
	t.Helper()

	out := &bytes.Buffer{}
	return &Globals{
		Server:    srv.URL,
		Timeout:   5 * time.Second,
		ConfigDir: t.TempDir(),
		Out:       out,
	}, out
}

func TestCommands_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	globals, out := newTestGlobals(t, srv)

	signup := &SignupCmd{Name: "Ada", Email: "ada@blog.dev", Password: "secret1"}
	require.NoError(t, signup.Run(ctx, globals))
	assert.Contains(t, out.String(), "Created account for Ada <ada@blog.dev>")

	out.Reset()
	whoami := &WhoamiCmd{FallbackTimeout: time.Second}
	require.NoError(t, whoami.Run(ctx, globals))
	assert.Equal(t, "Not logged in.\n", out.String())

	out.Reset()
	require.NoError(t, (&LoginCmd{Email: "ada@blog.dev", Password: "secret1"}).Run(ctx, globals))
	assert.Contains(t, out.String(), "Logged in as Ada <ada@blog.dev>")

	store, err := credentials.NewStore(globals.ConfigDir)
	require.NoError(t, err)
	token, err := store.Token(srv.URL)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	out.Reset()
	require.NoError(t, whoami.Run(ctx, globals))
	assert.Contains(t, out.String(), "Logged in as Ada <ada@blog.dev>")
	assert.Contains(t, out.String(), "Member since:")

	out.Reset()
	require.NoError(t, (&LogoutCmd{}).Run(ctx, globals))
	assert.Equal(t, "Logged out.\n", out.String())

	out.Reset()
	require.NoError(t, whoami.Run(ctx, globals))
	assert.Equal(t, "Not logged in.\n", out.String())

	out.Reset()
	require.NoError(t, (&LogoutCmd{}).Run(ctx, globals))
	assert.Equal(t, "Not logged in.\n", out.String())
}

func TestLoginCmd_Cooldown(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	globals, _ := newTestGlobals(t, srv)

	require.NoError(t, (&SignupCmd{Name: "Ada", Email: "ada@blog.dev", Password: "secret1"}).Run(ctx, globals))

	err := (&LoginCmd{Email: "ada@blog.dev", Password: "wrong-password"}).Run(ctx, globals)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid email or password")

	store, err := credentials.NewStore(globals.ConfigDir)
	require.NoError(t, err)
	creds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, creds.Failures)

	// the cooldown is still running, so even the right password is refused locally
	err = (&LoginCmd{Email: "ada@blog.dev", Password: "secret1"}).Run(ctx, globals)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many failed attempts")

	require.NoError(t, store.SaveFailures(1, time.Now().Add(-time.Minute)))
	require.NoError(t, (&LoginCmd{Email: "ada@blog.dev", Password: "secret1"}).Run(ctx, globals))

	creds, err = store.Load()
	require.NoError(t, err)
	assert.Zero(t, creds.Failures)
}

func TestSignupCmd_Duplicate(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	globals, _ := newTestGlobals(t, srv)

	require.NoError(t, (&SignupCmd{Name: "Ada", Email: "ada@blog.dev", Password: "secret1"}).Run(ctx, globals))

	err := (&SignupCmd{Name: "Ada", Email: "ada@blog.dev", Password: "secret1"}).Run(ctx, globals)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestSignupCmd_SuccessResetsCooldown(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	globals, _ := newTestGlobals(t, srv)

	err := (&SignupCmd{Name: "Ada", Email: "ada@blog.dev", Password: "short"}).Run(ctx, globals)
	require.Error(t, err)

	store, err := credentials.NewStore(globals.ConfigDir)
	require.NoError(t, err)
	creds, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, 1, creds.Failures)

	// let the cooldown lapse
	require.NoError(t, store.SaveFailures(1, time.Now().Add(-time.Minute)))
	require.NoError(t, (&SignupCmd{Name: "Ada", Email: "ada@blog.dev", Password: "secret1"}).Run(ctx, globals))

	creds, err = store.Load()
	require.NoError(t, err)
	assert.Zero(t, creds.Failures)
	assert.True(t, creds.LastFailure.IsZero())

	// a wrong password now costs one failure, not two
	err = (&LoginCmd{Email: "ada@blog.dev", Password: "wrong-password"}).Run(ctx, globals)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wait 1s before retrying")
}
