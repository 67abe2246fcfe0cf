package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/account-service/internal/models"
)

func TestRedisRevokeSetsTTLUntilExpiry(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewRedisRevocationRepository(client)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	repo.now = func() time.Time { return now }

	entry := models.RevokedToken{JTI: "jti-1", UserID: "u1", RevokedAt: now, ExpiresAt: now.Add(time.Hour)}
	mock.ExpectSetNX("auth:revoked:jti-1", "u1|2026-01-02T03:04:05Z", time.Hour+time.Second).SetVal(true)
	mock.ExpectSetNX("auth:revoked:jti-1", "u1|2026-01-02T03:04:05Z", time.Hour+time.Second).SetVal(false)

	inserted, err := repo.Revoke(context.Background(), entry)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Revoke(context.Background(), entry)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRevokeOutlivesTokenWithFractionalClock(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewRedisRevocationRepository(client)
	now := time.Date(2026, 1, 2, 0, 0, 0, 300*int(time.Millisecond), time.UTC)
	repo.now = func() time.Time { return now }

	exp := time.Date(2026, 1, 2, 0, 1, 0, 0, time.UTC)
	entry := models.RevokedToken{JTI: "jti-1", UserID: "u1", RevokedAt: exp.Add(-time.Minute), ExpiresAt: exp}
	mock.ExpectSetNX("auth:revoked:jti-1", "u1|2026-01-02T00:00:00Z", 61*time.Second).SetVal(true)

	_, err := repo.Revoke(context.Background(), entry)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	ttl := repo.ttl(exp)
	assert.False(t, now.Add(ttl).Before(exp), "key expires at %s, token valid until %s", now.Add(ttl), exp)
}

func TestRedisRevokeExpiredTokenKeepsMarker(t *testing.T) {
	repo := NewRedisRevocationRepository(nil)
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	assert.Equal(t, time.Second, repo.ttl(now.Add(-time.Hour)))
}

func TestRedisIsRevoked(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewRedisRevocationRepository(client)

	mock.ExpectExists("auth:revoked:jti-1").SetVal(1)
	mock.ExpectExists("auth:revoked:jti-2").SetVal(0)
	mock.ExpectExists("auth:revoked:jti-3").SetErr(errors.New("connection refused"))

	revoked, err := repo.IsRevoked(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = repo.IsRevoked(context.Background(), "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	_, err = repo.IsRevoked(context.Background(), "jti-3")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPurgeIsNoop(t *testing.T) {
	client, _ := redismock.NewClientMock()
	repo := NewRedisRevocationRepository(client)
	n, err := repo.PurgeExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}
