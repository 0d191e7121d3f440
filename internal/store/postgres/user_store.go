package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/blogify/internal/store"
)

const userColumns = `id, name, email, avatar_url, password_hash, created_at`

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new PostgreSQL-backed user store.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{
		pool: pool,
	}
}

// Create inserts a new user.
func (s *UserStore) Create(ctx context.Context, user *store.User) error {
	var passwordHash any
	if len(user.PasswordHash) > 0 {
		passwordHash = user.PasswordHash
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, avatar_url, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, user.ID, user.Name, user.Email, user.AvatarURL, passwordHash, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", mapPostgresError(err))
	}

	log.Debug().Str("user_id", user.ID.String()).Msg("Created user")
	return nil
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, id uuid.UUID) (*store.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail retrieves a user by email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*store.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower(trim($1))`, email)
	return scanUser(row)
}

// Update replaces the name and avatar of a user.
func (s *UserStore) Update(ctx context.Context, user *store.User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET name = $2, avatar_url = $3, updated_at = now()
		WHERE id = $1
	`, user.ID, user.Name, user.AvatarURL)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}

	return nil
}

func scanUser(row pgx.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.AvatarURL,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return &user, nil
}
