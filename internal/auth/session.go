package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/blogify/internal/models"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "_session"

const defaultIssuer = "blogify"

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrExpiredSession = errors.New("session expired")
)

// SessionVerifier turns request cookies into a resolved SessionState.
// Implementations never return models.StateUnresolved: a missing, malformed
// or expired token is Anonymous.
type SessionVerifier interface {
	Verify(ctx context.Context, cookies []*http.Cookie) models.SessionState
}

type sessionClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// CookieSessions issues and verifies HS256 JWT session cookies.
type CookieSessions struct {
	secret []byte
	issuer string
	secure bool
	now    func() time.Time
}

// Option configures CookieSessions.
type Option func(*CookieSessions)

// WithIssuer sets the "iss" claim written and required on tokens.
func WithIssuer(issuer string) Option {
	return func(c *CookieSessions) {
		c.issuer = issuer
	}
}

// WithSecureCookies controls the Secure attribute of session cookies.
func WithSecureCookies(secure bool) Option {
	return func(c *CookieSessions) {
		c.secure = secure
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *CookieSessions) {
		c.now = now
	}
}

// NewCookieSessions creates a session codec. The secret must be at least 32 bytes.
func NewCookieSessions(secret []byte, opts ...Option) (*CookieSessions, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}

	c := &CookieSessions{
		secret: secret,
		issuer: defaultIssuer,
		secure: true,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Issue signs a new session token for identity valid for ttl.
func (c *CookieSessions) Issue(identity models.Identity, ttl time.Duration) (string, *models.Session, error) {
	if ttl <= 0 {
		return "", nil, fmt.Errorf("session TTL must be greater than 0")
	}

	tokenID, err := newTokenID()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token id: %w", err)
	}

	// NumericDate has second precision, keep the returned session in step with the token.
	now := c.now().Truncate(time.Second)
	session := &models.Session{
		TokenID:   tokenID,
		Subject:   identity.ID,
		Email:     identity.Email,
		Name:      identity.Name,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	claims := &sessionClaims{
		Email: session.Email,
		Name:  session.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.TokenID,
			Subject:   session.Subject.String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return token, session, nil
}

// Parse validates a session token and returns its claims.
// Returns ErrExpiredSession for expired tokens and ErrInvalidSession for anything else.
func (c *CookieSessions) Parse(token string) (*models.Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredSession
		}
		log.Debug().Err(err).Msg("Session token rejected")
		return nil, ErrInvalidSession
	}

	return claims.session()
}

// ParseUnverified decodes the claims of a session token without checking its
// signature. Clients holding a token use it to read the subject and expiry;
// it must never be used to authorize a request.
func ParseUnverified(token string) (*models.Session, error) {
	var claims sessionClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, ErrInvalidSession
	}

	if claims.ExpiresAt == nil {
		return nil, ErrInvalidSession
	}

	return claims.session()
}

func (c *sessionClaims) session() (*models.Session, error) {
	subject, err := uuid.Parse(c.Subject)
	if err != nil {
		log.Debug().Str("sub", c.Subject).Msg("Session token subject is not a uuid")
		return nil, ErrInvalidSession
	}

	if c.Email == "" {
		return nil, ErrInvalidSession
	}

	session := &models.Session{
		TokenID:   c.ID,
		Subject:   subject,
		Email:     c.Email,
		Name:      c.Name,
		ExpiresAt: c.ExpiresAt.Time,
	}
	if c.IssuedAt != nil {
		session.IssuedAt = c.IssuedAt.Time
	}

	return session, nil
}

// SessionFromCookies parses the session cookie out of cookies.
func (c *CookieSessions) SessionFromCookies(cookies []*http.Cookie) (*models.Session, error) {
	for _, cookie := range cookies {
		if cookie.Name == SessionCookieName && cookie.Value != "" {
			return c.Parse(cookie.Value)
		}
	}
	return nil, ErrInvalidSession
}

// Verify implements SessionVerifier.
func (c *CookieSessions) Verify(ctx context.Context, cookies []*http.Cookie) models.SessionState {
	session, err := c.SessionFromCookies(cookies)
	if err != nil {
		return models.Anonymous()
	}
	return models.Authenticated(models.FallbackIdentity(session))
}

// SetCookie writes the session token as an HttpOnly cookie expiring with the session.
func (c *CookieSessions) SetCookie(w http.ResponseWriter, token string, session *models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(session.ExpiresAt.Sub(c.now()).Seconds()),
	})
}

// ClearCookie expires the session cookie.
func (c *CookieSessions) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func newTokenID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base58.Encode(b), nil
}
