package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/account-service/internal/models"
)

const revokedKeyPrefix = "auth:revoked:"

// revokedKeyGrace keeps a key alive past its token's exp to absorb clock
// drift between the service and Redis.
const revokedKeyGrace = time.Second

// RedisRevocationRepository keeps the revocation set in Redis. Each entry
// expires with its token, so garbage collection is left to Redis.
type RedisRevocationRepository struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRevocationRepository constructs a Redis-backed revocation store.
func NewRedisRevocationRepository(client *redis.Client) *RedisRevocationRepository {
	return &RedisRevocationRepository{client: client, now: time.Now}
}

func revokedKey(jti string) string {
	return revokedKeyPrefix + jti
}

// Revoke stores the jti with SET NX until the token's expiry.
func (r *RedisRevocationRepository) Revoke(ctx context.Context, token models.RevokedToken) (bool, error) {
	value := token.UserID + "|" + token.RevokedAt.UTC().Format(time.RFC3339)

	ok, err := r.client.SetNX(ctx, revokedKey(token.JTI), value, r.ttl(token.ExpiresAt)).Result()
	if err != nil {
		return false, fmt.Errorf("redis revoke %s: %w", token.JTI, err)
	}
	return ok, nil
}

// ttl rounds up to whole seconds so the key never expires before the token.
func (r *RedisRevocationRepository) ttl(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(r.now())
	if ttl < 0 {
		// an expired token cannot verify anyway; keep a short marker
		ttl = 0
	}
	if rem := ttl % time.Second; rem != 0 {
		ttl += time.Second - rem
	}
	return ttl + revokedKeyGrace
}

// IsRevoked reports whether the jti key exists.
func (r *RedisRevocationRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("redis lookup %s: %w", jti, err)
	}
	return n > 0, nil
}

// PurgeExpired is a no-op: Redis expires entries with their TTL.
func (r *RedisRevocationRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
