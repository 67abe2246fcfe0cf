package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
}

func TestUserNeverSerializesHash(t *testing.T) {
	u := User{ID: "u1", Email: "alice@example.com", Name: "Alice", PasswordHash: "$argon2id$secret", CreatedAt: time.Unix(0, 0).UTC()}

	raw, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "argon2id")

	raw, err = json.Marshal(u.Profile())
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1","email":"alice@example.com","name":"Alice","created_at":"1970-01-01T00:00:00Z"}`, string(raw))
}

func TestTokenPairOmitsEmptyRefresh(t *testing.T) {
	raw, err := json.Marshal(TokenPair{Access: "a"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"access":"a"}`, string(raw))
}
