package models

import "time"

// RevokedToken is an entry of the revocation set, keyed by refresh-token jti.
type RevokedToken struct {
	JTI       string    `db:"jti" json:"jti"`
	UserID    string    `db:"user_id" json:"user_id"`
	RevokedAt time.Time `db:"revoked_at" json:"revoked_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}
