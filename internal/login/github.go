package login

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/blogify/internal/auth"
	"github.com/wolfeidau/blogify/internal/models"
	"github.com/wolfeidau/blogify/internal/store"
	"github.com/wolfeidau/blogify/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	stateCookieName   = "oauth_state"
	githubAPIBaseURL  = "https://api.github.com"
	githubCallTimeout = 10 * time.Second
)

// Github signs users in with GitHub OAuth. Users are matched to existing
// accounts by email and created on first sign in.
type Github struct {
	config      *oauth2.Config
	users       store.UserStore
	sessions    *auth.CookieSessions
	sessionTTL  time.Duration
	landingPath string
	apiBaseURL  string
}

func NewGithub(clientID, clientSecret, callbackURL string, users store.UserStore, sessions *auth.CookieSessions, sessionTTL time.Duration, landingPath string) (*Github, error) {
	if users == nil || sessions == nil {
		return nil, fmt.Errorf("user store and session codec are required")
	}

	if clientID == "" || clientSecret == "" || callbackURL == "" {
		return nil, fmt.Errorf("client ID, client secret, and callback URL are required")
	}

	if sessionTTL <= 0 {
		return nil, fmt.Errorf("session TTL must be greater than 0")
	}

	if landingPath == "" {
		landingPath = "/"
	}

	return &Github{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"user:email"},
			Endpoint:     github.Endpoint,
		},
		users:       users,
		sessions:    sessions,
		sessionTTL:  sessionTTL,
		landingPath: landingPath,
		apiBaseURL:  githubAPIBaseURL,
	}, nil
}

// Register mounts the OAuth routes on mux.
func (g *Github) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /auth/github", g.LoginHandler)
	mux.HandleFunc("GET /auth/github/callback", g.CallbackHandler)
}

func (g *Github) saveState(w http.ResponseWriter) string {
	state := rand.Text()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // long enough for the OAuth round trip
	})

	return state
}

func (g *Github) LoginHandler(w http.ResponseWriter, r *http.Request) {
	log.Debug().Msg("Initiating GitHub OAuth flow")

	state := g.saveState(w)
	http.Redirect(w, r, g.config.AuthCodeURL(state), http.StatusFound)
}

func (g *Github) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	state := r.FormValue("state")
	code := r.FormValue("code")

	if state == "" || code == "" {
		log.Warn().Msg("OAuth callback missing state or code")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value != state {
		log.Warn().Msg("OAuth callback state mismatch")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to exchange OAuth code for token")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	info, err := g.getUserInfo(ctx, token)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch user info from GitHub")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	if info.Email == "" {
		log.Warn().Str("login", info.Login).Msg("GitHub user has no usable email address")
		http.Error(w, "Email address required", http.StatusBadRequest)
		return
	}

	user, err := g.findOrCreateUser(ctx, info)
	if err != nil {
		log.Error().Err(err).Msg("Failed to find or create user")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	sessionToken, session, err := g.sessions.Issue(user.Identity, g.sessionTTL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create session token")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	g.sessions.SetCookie(w, sessionToken, session)
	telemetry.GetMetrics().SessionsIssuedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("method", "github")))

	log.Info().Str("user_id", user.ID.String()).Msg("User authenticated with GitHub")

	http.Redirect(w, r, g.landingPath, http.StatusFound)
}

// findOrCreateUser matches GitHub users to accounts by email.
func (g *Github) findOrCreateUser(ctx context.Context, info *UserInfo) (*store.User, error) {
	email := normalizeEmail(info.Email)

	user, err := g.users.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user id: %w", err)
	}

	name := strings.TrimSpace(info.Name)
	if name == "" {
		name = info.Login
	}
	if name == "" {
		name = models.DisplayNameFromEmail(email)
	}

	user = &store.User{
		Identity: models.Identity{
			ID:        id,
			Name:      name,
			Email:     email,
			CreatedAt: time.Now().UTC(),
		},
	}
	if info.AvatarURL != "" {
		avatar := info.AvatarURL
		user.AvatarURL = &avatar
	}

	err = g.users.Create(ctx, user)
	if errors.Is(err, store.ErrUserAlreadyExists) {
		// lost a race with a concurrent sign in
		return g.users.GetByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("user_id", id.String()).Str("login", info.Login).Msg("Created user from GitHub profile")
	return user, nil
}

func (g *Github) getUserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, githubCallTimeout)
	defer cancel()

	var info UserInfo
	if err := g.getJSON(ctx, token, "/user", &info); err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	// private emails are only listed on /user/emails
	if info.Email == "" {
		var emails []githubEmail
		if err := g.getJSON(ctx, token, "/user/emails", &emails); err != nil {
			return nil, fmt.Errorf("failed to fetch user emails: %w", err)
		}
		for _, email := range emails {
			if email.Primary && email.Verified {
				info.Email = email.Email
				break
			}
		}
	}

	return &info, nil
}

func (g *Github) getJSON(ctx context.Context, token *oauth2.Token, path string, dst any) error {
	client := g.config.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GitHub API returned HTTP %d for %s", resp.StatusCode, path)
	}

	return json.NewDecoder(resp.Body).Decode(dst)
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

type UserInfo struct {
	Login     string `json:"login"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}
