package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/blogify/internal/store"
)

func TestMapPostgresError(t *testing.T) {
	require.NoError(t, mapPostgresError(nil))
	require.ErrorIs(t, mapPostgresError(pgx.ErrNoRows), store.ErrUserNotFound)

	unique := &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"}
	require.ErrorIs(t, mapPostgresError(unique), store.ErrUserAlreadyExists)

	canceled := &pgconn.PgError{Code: pgerrcode.QueryCanceled}
	err := mapPostgresError(canceled)
	require.ErrorIs(t, err, canceled)
	require.Contains(t, err.Error(), "query canceled")

	plain := errors.New("boom")
	require.Equal(t, plain, mapPostgresError(plain))
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	require.Equal(t, 1, migrations[0].version)
	require.Contains(t, migrations[0].content, "CREATE TABLE IF NOT EXISTS users")
}

func TestPoolConfig(t *testing.T) {
	cfg := &PoolConfig{}
	require.Error(t, cfg.Validate())

	cfg.ConnString = "postgres://localhost/blogify"
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, int32(10), cfg.MaxConns)
	require.Equal(t, int32(2), cfg.MinConns)

	cfg.MinConns = 20
	require.Error(t, cfg.Validate())
}
