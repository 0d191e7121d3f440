package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/blogify/internal/store"
)

// UserStore implements store.UserStore using in-memory storage.
// This implementation is for development and tests - data is lost on restart.
type UserStore struct {
	mu sync.RWMutex

	users        map[uuid.UUID]*store.User // id -> User
	usersByEmail map[string]uuid.UUID      // lower(email) -> id
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:        make(map[uuid.UUID]*store.User),
		usersByEmail: make(map[string]uuid.UUID),
	}
}

// Create creates a new user in memory.
func (s *UserStore) Create(ctx context.Context, user *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return store.ErrUserAlreadyExists
	}

	email := normalizeEmail(user.Email)
	if _, exists := s.usersByEmail[email]; exists {
		return store.ErrUserAlreadyExists
	}

	// Clone to avoid external modifications
	s.users[user.ID] = cloneUser(user)
	s.usersByEmail[email] = user.ID

	return nil
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, id uuid.UUID) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	return cloneUser(user), nil
}

// GetByEmail retrieves a user by email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.usersByEmail[normalizeEmail(email)]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	return cloneUser(s.users[id]), nil
}

// Update updates the name and avatar of an existing user.
func (s *UserStore) Update(ctx context.Context, user *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.users[user.ID]
	if !exists {
		return store.ErrUserNotFound
	}

	existing.Name = user.Name
	existing.AvatarURL = cloneString(user.AvatarURL)

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneUser(u *store.User) *store.User {
	clone := *u
	clone.AvatarURL = cloneString(u.AvatarURL)
	clone.PasswordHash = append([]byte(nil), u.PasswordHash...)
	return &clone
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
