package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/account-service/internal/models"
)

// RevocationRepository stores revoked refresh-token ids in SQL.
type RevocationRepository struct {
	db *sqlx.DB
}

// NewRevocationRepository constructs a SQL revocation store.
func NewRevocationRepository(db *sqlx.DB) *RevocationRepository {
	return &RevocationRepository{db: db}
}

// Revoke inserts the jti if absent. It reports whether this call inserted
// the entry; false means the jti was already revoked.
func (r *RevocationRepository) Revoke(ctx context.Context, token models.RevokedToken) (bool, error) {
	query := r.db.Rebind(`INSERT INTO revoked_tokens (jti, user_id, revoked_at, expires_at) VALUES (?, ?, ?, ?) ON CONFLICT (jti) DO NOTHING`)
	res, err := r.db.ExecContext(ctx, query, token.JTI, token.UserID, token.RevokedAt, token.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke token: rows affected: %w", err)
	}
	return n == 1, nil
}

// IsRevoked reports whether the jti is in the revocation set.
func (r *RevocationRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	query := r.db.Rebind(`SELECT COUNT(1) FROM revoked_tokens WHERE jti = ?`)
	var count int
	if err := r.db.GetContext(ctx, &count, query, jti); err != nil {
		return false, fmt.Errorf("lookup revoked token: %w", err)
	}
	return count > 0, nil
}

// PurgeExpired deletes entries whose token expired at or before cutoff.
func (r *RevocationRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := r.db.Rebind(`DELETE FROM revoked_tokens WHERE expires_at <= ?`)
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge revoked tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge revoked tokens: rows affected: %w", err)
	}
	return n, nil
}
