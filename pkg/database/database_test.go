package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/account-service/pkg/config"
)

func TestSQLiteMigrateAndUniqueEmail(t *testing.T) {
	db, err := NewSQLite(config.DatabaseConfig{SQLitePath: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, zap.NewNop()))
	// a second run is a no-op
	require.NoError(t, Migrate(ctx, db, zap.NewNop()))

	insert := db.Rebind(`INSERT INTO users (id, email, name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`)
	now := time.Now().UTC()
	_, err = db.ExecContext(ctx, insert, "u1", "alice@example.com", "Alice", "hash", now, now)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, insert, "u2", "alice@example.com", "Alice 2", "hash", now, now)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestIsUniqueViolationPostgres(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql"})
	assert.Error(t, err)
}
