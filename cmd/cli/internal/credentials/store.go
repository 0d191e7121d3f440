package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

const sessionFile = "session.json"

// ErrNotLoggedIn is returned when no session token is stored.
var ErrNotLoggedIn = errors.New("not logged in")

// Credentials is the persisted CLI state: the session token for one server
// and the advisory login cooldown.
type Credentials struct {
	Version     int       `json:"version"`
	Server      string    `json:"server,omitempty"`
	Token       string    `json:"token,omitempty"`
	Failures    int       `json:"failures,omitempty"`
	LastFailure time.Time `json:"last_failure,omitzero"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasToken returns true if a session token is stored.
func (c *Credentials) HasToken() bool {
	return c.Token != ""
}

// Store manages the session file on the local filesystem.
type Store struct {
	baseDir string
}

// NewStore creates a new credential store.
// If baseDir is empty, uses ~/.blogify/
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".blogify")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}

	log.Debug().Str("baseDir", baseDir).Msg("credential store initialized")

	return &Store{baseDir: baseDir}, nil
}

// Path returns the session file location.
func (s *Store) Path() string {
	return filepath.Join(s.baseDir, sessionFile)
}

// Load reads the session file. A missing file returns empty credentials.
func (s *Store) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return &Credentials{Version: 1}, nil
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	return &creds, nil
}

// Token returns the stored session token for server.
// A token issued by a different server is treated as absent.
func (s *Store) Token(server string) (string, error) {
	creds, err := s.Load()
	if err != nil {
		return "", err
	}

	if !creds.HasToken() || (server != "" && creds.Server != server) {
		return "", ErrNotLoggedIn
	}

	return creds.Token, nil
}

// SaveToken stores a session token and resets the failure count.
func (s *Store) SaveToken(server, token string) error {
	creds, err := s.Load()
	if err != nil {
		return err
	}

	creds.Server = server
	creds.Token = token
	creds.Failures = 0
	creds.LastFailure = time.Time{}

	if err := s.save(creds); err != nil {
		return err
	}

	log.Debug().Str("server", server).Msg("session token saved")

	return nil
}

// ClearToken removes the stored session token, keeping the failure state.
func (s *Store) ClearToken() error {
	creds, err := s.Load()
	if err != nil {
		return err
	}

	if !creds.HasToken() {
		return ErrNotLoggedIn
	}

	creds.Token = ""

	if err := s.save(creds); err != nil {
		return err
	}

	log.Debug().Msg("session token cleared")

	return nil
}

// SaveFailures persists the login failure count and the time of the last failure.
func (s *Store) SaveFailures(failures int, lastFailure time.Time) error {
	creds, err := s.Load()
	if err != nil {
		return err
	}

	creds.Failures = failures
	creds.LastFailure = lastFailure

	return s.save(creds)
}

// save writes the session file atomically.
func (s *Store) save(creds *Credentials) error {
	creds.Version = 1
	creds.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	path := s.Path()
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	return nil
}
