package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/account-service/internal/models"
	"github.com/noah-isme/account-service/pkg/config"
	"github.com/noah-isme/account-service/pkg/database"
)

func newSQLite(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.NewSQLite(config.DatabaseConfig{SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, zap.NewNop()))
	return db
}

func TestSQLiteUserRoundTrip(t *testing.T) {
	repo := NewUserRepository(newSQLite(t))
	ctx := context.Background()

	user := &models.User{Email: "Alice@Example.com", Name: "Alice", PasswordHash: "hash"}
	require.NoError(t, repo.Create(ctx, user))

	found, err := repo.FindByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.Equal(t, "alice@example.com", found.Email)

	require.NoError(t, repo.UpdateName(ctx, user.ID, "Alice B", time.Now().UTC()))
	require.NoError(t, repo.UpdatePasswordHash(ctx, user.ID, "hash2", time.Now().UTC()))

	found, err = repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice B", found.Name)
	assert.Equal(t, "hash2", found.PasswordHash)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.ErrorIs(t, repo.UpdateName(ctx, "ghost", "x", time.Now()), sql.ErrNoRows)
}

func TestSQLiteConcurrentRegistrationSingleWinner(t *testing.T) {
	repo := NewUserRepository(newSQLite(t))
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.Create(ctx, &models.User{Email: "race@example.com", Name: "Racer", PasswordHash: "hash"})
		}()
	}
	wg.Wait()
	close(results)

	var ok, dup int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateEmail):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, dup)
}

func TestSQLiteRevocationSet(t *testing.T) {
	repo := NewRevocationRepository(newSQLite(t))
	ctx := context.Background()
	now := time.Now().UTC()

	inserted, err := repo.Revoke(ctx, models.RevokedToken{JTI: "a", UserID: "u1", RevokedAt: now, ExpiresAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Revoke(ctx, models.RevokedToken{JTI: "a", UserID: "u1", RevokedAt: now, ExpiresAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	assert.False(t, inserted)

	_, err = repo.Revoke(ctx, models.RevokedToken{JTI: "b", UserID: "u1", RevokedAt: now, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	purged, err := repo.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	revoked, err := repo.IsRevoked(ctx, "b")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = repo.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.False(t, revoked)
}
