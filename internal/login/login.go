package login

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/blogify/internal/auth"
	httpmiddleware "github.com/wolfeidau/blogify/internal/http"
	"github.com/wolfeidau/blogify/internal/models"
	"github.com/wolfeidau/blogify/internal/store"
	"github.com/wolfeidau/blogify/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted at signup.
const MinPasswordLength = 6

const msgInvalidCredentials = "Invalid email or password"

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned on a successful login. AccessToken is the same
// value as the session cookie, for clients that cannot keep cookies.
type LoginResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SignupRequest is the body of POST /api/auth/signup.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Handler serves the password login, signup and logout endpoints.
type Handler struct {
	users      store.UserStore
	sessions   *auth.CookieSessions
	sessionTTL time.Duration
	cost       int

	// compared against when the email is unknown so both paths cost a bcrypt check
	dummyHash []byte
}

// Option configures a Handler.
type Option func(*Handler)

// WithBcryptCost overrides bcrypt.DefaultCost, tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(h *Handler) {
		h.cost = cost
	}
}

// NewHandler creates the password auth handler.
func NewHandler(users store.UserStore, sessions *auth.CookieSessions, sessionTTL time.Duration, opts ...Option) (*Handler, error) {
	if users == nil || sessions == nil {
		return nil, errors.New("user store and session codec are required")
	}
	if sessionTTL <= 0 {
		return nil, errors.New("session TTL must be greater than 0")
	}

	h := &Handler{
		users:      users,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		cost:       bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(h)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), h.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hasher: %w", err)
	}
	h.dummyHash = dummy

	return h, nil
}

// Register mounts the handler routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/signup", h.Signup)
	mux.HandleFunc("POST /api/auth/logout", h.Logout)
}

// Login checks the password and issues a session cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := httpmiddleware.DecodeJSON(w, r, &req); err != nil {
		log.Debug().Err(err).Msg("Invalid login request body")
		httpmiddleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(req.Password))
		h.rejectLogin(ctx, w, email, "unknown_email")
		return
	case err != nil:
		log.Error().Err(err).Msg("Failed to load user for login")
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if len(user.PasswordHash) == 0 {
		// OAuth-only account
		_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(req.Password))
		h.rejectLogin(ctx, w, email, "no_password")
		return
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)); err != nil {
		h.rejectLogin(ctx, w, email, "bad_password")
		return
	}

	token, session, err := h.sessions.Issue(user.Identity, h.sessionTTL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to issue session")
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.sessions.SetCookie(w, token, session)
	telemetry.GetMetrics().SessionsIssuedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("method", "password")))

	log.Info().Str("user_id", user.ID.String()).Msg("User logged in")

	name := user.Name
	if name == "" {
		name = models.DisplayNameFromEmail(user.Email)
	}

	httpmiddleware.WriteJSON(w, http.StatusOK, LoginResponse{
		ID:          user.ID,
		Name:        name,
		Email:       user.Email,
		AccessToken: token,
		ExpiresAt:   session.ExpiresAt,
	})
}

func (h *Handler) rejectLogin(ctx context.Context, w http.ResponseWriter, email, reason string) {
	log.Debug().Str("email", email).Str("reason", reason).Msg("Login rejected")
	telemetry.GetMetrics().LoginFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	httpmiddleware.WriteError(w, http.StatusUnauthorized, msgInvalidCredentials)
}

// Signup creates a password user. It does not log the user in.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SignupRequest
	if err := httpmiddleware.DecodeJSON(w, r, &req); err != nil {
		log.Debug().Err(err).Msg("Invalid signup request body")
		httpmiddleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	email := normalizeEmail(req.Email)
	if name == "" || email == "" || req.Password == "" {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "Name, email and password are required")
		return
	}

	if !strings.Contains(email, "@") {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "Email address is invalid")
		return
	}

	if len(req.Password) < MinPasswordLength {
		httpmiddleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "Password must be at most 72 bytes")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to hash password")
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate user id")
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user := &store.User{
		Identity: models.Identity{
			ID:        id,
			Name:      name,
			Email:     email,
			CreatedAt: time.Now().UTC(),
		},
		PasswordHash: hash,
	}

	if err := h.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrUserAlreadyExists) {
			httpmiddleware.WriteError(w, http.StatusConflict, "An account with this email already exists")
			return
		}
		log.Error().Err(err).Msg("Failed to create user")
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	log.Info().Str("user_id", id.String()).Msg("User signed up")

	httpmiddleware.WriteJSON(w, http.StatusCreated, user.Identity)
}

// Logout clears the session cookie. Tokens are stateless, so a copied token
// stays valid until it expires.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if state, ok := auth.SessionFromContext(r.Context()); ok && state.IsAuthenticated() {
		log.Info().Str("user_id", state.Identity.ID.String()).Msg("User logged out")
	}

	h.sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
