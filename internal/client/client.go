package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	httpmiddleware "github.com/wolfeidau/blogify/internal/http"
	"github.com/wolfeidau/blogify/internal/login"
	"github.com/wolfeidau/blogify/internal/models"
	"github.com/wolfeidau/blogify/internal/session"
	"github.com/wolfeidau/blogify/internal/store"
)

var _ session.ProfileStore = (*Client)(nil)

var (
	// ErrInvalidCredentials is returned by Login for a 401.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// APIError is a non-2xx response with the server's error message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// RateLimitedError is returned when the edge gate answers 429.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many requests, retry after %s", e.RetryAfter)
}

// Config holds common client configuration
type Config struct {
	ServerURL string
	Timeout   time.Duration

	// CacheDir persists cached GET responses. Empty uses an in-memory cache.
	CacheDir string

	// MaxTries bounds attempts for idempotent requests.
	MaxTries uint
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "https://localhost:8443",
		Timeout:   30 * time.Second,
		MaxTries:  4,
	}
}

// Client talks to the blog's JSON API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	maxTries   uint

	// newBackOff is swapped by tests to avoid real sleeps
	newBackOff func() backoff.BackOff
}

// New creates an API client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.ServerURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", cfg.ServerURL)
	}

	if cfg.MaxTries == 0 {
		cfg.MaxTries = 1
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Transport: newCachingTransport(cfg.CacheDir, http.DefaultTransport),
			Timeout:   cfg.Timeout,
		},
		maxTries: cfg.MaxTries,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}, nil
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, email, password string) (*login.LoginResponse, error) {
	var resp login.LoginResponse
	err := c.send(ctx, http.MethodPost, "/api/auth/login", login.LoginRequest{Email: email, Password: password}, &resp)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	return &resp, nil
}

// Signup creates an account. It does not log in.
func (c *Client) Signup(ctx context.Context, name, email, password string) (*models.Identity, error) {
	var identity models.Identity
	err := c.send(ctx, http.MethodPost, "/api/auth/signup", login.SignupRequest{Name: name, Email: email, Password: password}, &identity)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		return nil, fmt.Errorf("%w: %s", store.ErrUserAlreadyExists, apiErr.Message)
	}
	if err != nil {
		return nil, err
	}

	return &identity, nil
}

// GetProfile fetches a public profile. Network errors and 5xx responses are
// retried with exponential backoff, a 404 returns store.ErrUserNotFound.
func (c *Client) GetProfile(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	path := "/api/users/" + id.String()

	identity, err := backoff.Retry(ctx, func() (*models.Identity, error) {
		var identity models.Identity
		err := c.send(ctx, http.MethodGet, path, nil, &identity)
		if err == nil {
			return &identity, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if apiErr.StatusCode == http.StatusNotFound {
				return nil, backoff.Permanent(store.ErrUserNotFound)
			}
			if apiErr.StatusCode < http.StatusInternalServerError {
				return nil, backoff.Permanent(err)
			}
		}

		var limited *RateLimitedError
		if errors.As(err, &limited) {
			return nil, backoff.Permanent(err)
		}

		log.Debug().Err(err).Str("path", path).Msg("Retrying profile request")
		return nil, err
	}, backoff.WithBackOff(c.newBackOff()), backoff.WithMaxTries(c.maxTries))
	if err != nil {
		return nil, err
	}

	return identity, nil
}

func (c *Client) send(ctx context.Context, method, path string, body, dst any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		seconds, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return &RateLimitedError{RetryAfter: time.Duration(seconds) * time.Second}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	// read to EOF so the caching transport stores the response
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if dst == nil {
		return nil
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var body httpmiddleware.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
}
