package login

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/blogify/internal/auth"
	"github.com/wolfeidau/blogify/internal/store"
	"github.com/wolfeidau/blogify/internal/store/memory"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("test-secret-key-min-32-bytes-long!!")

type testEnv struct {
	users    *memory.UserStore
	sessions *auth.CookieSessions
	handler  *Handler
	mux      *http.ServeMux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sessions, err := auth.NewCookieSessions(testSecret)
	require.NoError(t, err)

	users := memory.NewUserStore()
	h, err := NewHandler(users, sessions, time.Hour, WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)

	return &testEnv{users: users, sessions: sessions, handler: h, mux: mux}
}

func (e *testEnv) post(path, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)
	return w
}

func (e *testEnv) signup(t *testing.T, name, email, password string) {
	t.Helper()
	body, err := json.Marshal(SignupRequest{Name: name, Email: email, Password: password})
	require.NoError(t, err)
	w := e.post("/api/auth/signup", string(body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestNewHandler(t *testing.T) {
	sessions, err := auth.NewCookieSessions(testSecret)
	require.NoError(t, err)

	_, err = NewHandler(nil, sessions, time.Hour)
	require.Error(t, err)

	_, err = NewHandler(memory.NewUserStore(), sessions, 0)
	require.Error(t, err)
}

func TestSignup(t *testing.T) {
	env := newTestEnv(t)

	w := env.post("/api/auth/signup", `{"name":"Ada","email":" Ada@Blog.dev ","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "Ada", body["name"])
	require.Equal(t, "ada@blog.dev", body["email"])
	require.NotEmpty(t, body["id"])
	require.NotEmpty(t, body["created_at"])
	require.NotContains(t, body, "password")

	user, err := env.users.GetByEmail(context.Background(), "ada@blog.dev")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword(user.PasswordHash, []byte("secret1")))

	// signup does not log in
	require.Empty(t, w.Result().Cookies())
}

func TestSignup_validation(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "Ada", "ada@blog.dev", "secret1")

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"missing name", `{"email":"b@blog.dev","password":"secret1"}`, http.StatusBadRequest, "Name, email and password are required"},
		{"missing password", `{"name":"B","email":"b@blog.dev"}`, http.StatusBadRequest, "Name, email and password are required"},
		{"short password", `{"name":"B","email":"b@blog.dev","password":"12345"}`, http.StatusBadRequest, "Password must be at least 6 characters"},
		{"long password", `{"name":"B","email":"b@blog.dev","password":"` + strings.Repeat("x", 80) + `"}`, http.StatusBadRequest, "Password must be at most 72 bytes"},
		{"bad email", `{"name":"B","email":"blog.dev","password":"secret1"}`, http.StatusBadRequest, "Email address is invalid"},
		{"duplicate", `{"name":"Ada2","email":"ADA@blog.dev","password":"secret1"}`, http.StatusConflict, "An account with this email already exists"},
		{"not json", `name=ada`, http.StatusBadRequest, "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.post("/api/auth/signup", tt.body)
			require.Equal(t, tt.wantCode, w.Code)
			require.JSONEq(t, `{"error":"`+tt.wantErr+`"}`, w.Body.String())
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "Ada Lovelace", "ada@blog.dev", "secret1")

	w := env.post("/api/auth/login", `{"email":"ADA@blog.dev","password":"secret1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp LoginResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "Ada Lovelace", resp.Name)
	require.Equal(t, "ada@blog.dev", resp.Email)
	require.NotEmpty(t, resp.AccessToken)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, auth.SessionCookieName, cookies[0].Name)
	require.Equal(t, resp.AccessToken, cookies[0].Value)

	state := env.sessions.Verify(context.Background(), cookies)
	require.True(t, state.IsAuthenticated())
	require.Equal(t, resp.ID, state.Identity.ID)
}

func TestLogin_nameFallsBackToEmail(t *testing.T) {
	env := newTestEnv(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &store.User{PasswordHash: hash}
	user.ID = uuid.New()
	user.Email = "writer@blog.dev"
	require.NoError(t, env.users.Create(context.Background(), user))

	w := env.post("/api/auth/login", `{"email":"writer@blog.dev","password":"secret1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp LoginResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "writer", resp.Name)
}

func TestLogin_rejected(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "Ada", "ada@blog.dev", "secret1")

	oauthOnly := &store.User{}
	oauthOnly.ID = uuid.New()
	oauthOnly.Name = "Octo"
	oauthOnly.Email = "octo@blog.dev"
	require.NoError(t, env.users.Create(context.Background(), oauthOnly))

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"wrong password", `{"email":"ada@blog.dev","password":"nope123"}`, http.StatusUnauthorized, "Invalid email or password"},
		{"unknown email", `{"email":"bob@blog.dev","password":"secret1"}`, http.StatusUnauthorized, "Invalid email or password"},
		{"oauth only account", `{"email":"octo@blog.dev","password":"secret1"}`, http.StatusUnauthorized, "Invalid email or password"},
		{"missing password", `{"email":"ada@blog.dev"}`, http.StatusBadRequest, "Email and password are required"},
		{"empty body", ``, http.StatusBadRequest, "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.post("/api/auth/login", tt.body)
			require.Equal(t, tt.wantCode, w.Code)
			require.JSONEq(t, `{"error":"`+tt.wantErr+`"}`, w.Body.String())
			require.Empty(t, w.Result().Cookies())
		})
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)

	w := env.post("/api/auth/logout", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, auth.SessionCookieName, cookies[0].Name)
	require.Equal(t, -1, cookies[0].MaxAge)
}
