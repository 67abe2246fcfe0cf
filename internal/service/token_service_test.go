package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/account-service/internal/models"
	appErrors "github.com/noah-isme/account-service/pkg/errors"
)

type memoryRevocations struct {
	mu           sync.Mutex
	entries      map[string]models.RevokedToken
	isRevokedErr error
}

func newMemoryRevocations() *memoryRevocations {
	return &memoryRevocations{entries: make(map[string]models.RevokedToken)}
}

func (m *memoryRevocations) Revoke(ctx context.Context, token models.RevokedToken) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[token.JTI]; ok {
		return false, nil
	}
	m.entries[token.JTI] = token
	return true, nil
}

func (m *memoryRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isRevokedErr != nil {
		return false, m.isRevokedErr
	}
	_, ok := m.entries[jti]
	return ok, nil
}

func (m *memoryRevocations) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for jti, entry := range m.entries {
		if !entry.ExpiresAt.After(cutoff) {
			delete(m.entries, jti)
			n++
		}
	}
	return n, nil
}

func (m *memoryRevocations) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

var clockBase = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestTokenService(t *testing.T, cfg TokenConfig) (*TokenService, *memoryRevocations, *testClock) {
	t.Helper()
	if cfg.AccessSecret == "" {
		cfg.AccessSecret = "access-secret"
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 24 * time.Hour
	}
	store := newMemoryRevocations()
	svc, err := NewTokenService(store, cfg, nil, NewMetricsService())
	require.NoError(t, err)
	clock := &testClock{t: clockBase}
	svc.now = clock.Now
	return svc, store, clock
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	_, err := NewTokenService(newMemoryRevocations(), TokenConfig{}, nil, nil)
	assert.Error(t, err)

	_, err = NewTokenService(nil, TokenConfig{AccessSecret: "x"}, nil, nil)
	assert.Error(t, err)
}

func TestIssueAndVerifyAccess(t *testing.T) {
	svc, _, _ := newTestTokenService(t, TokenConfig{Issuer: "account-service", Audience: "clients"})

	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.Access)
	assert.NotEmpty(t, pair.Refresh)
	assert.True(t, clockBase.Add(15*time.Minute).Equal(pair.AccessExpiresAt))
	assert.True(t, clockBase.Add(24*time.Hour).Equal(pair.RefreshExpiresAt))

	claims, err := svc.VerifyAccess(pair.Access)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, models.TokenTypeAccess, claims.Type)
	assert.Empty(t, claims.ID)

	refresh, err := svc.VerifyRefresh(context.Background(), pair.Refresh)
	require.NoError(t, err)
	assert.Equal(t, "user-1", refresh.UserID())
	assert.NotEmpty(t, refresh.ID)
}

func TestAccessTokenExpiryBoundary(t *testing.T) {
	svc, _, clock := newTestTokenService(t, TokenConfig{})
	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)

	clock.Set(clockBase.Add(15*time.Minute - time.Second))
	_, err = svc.VerifyAccess(pair.Access)
	require.NoError(t, err)

	clock.Set(clockBase.Add(15 * time.Minute))
	_, err = svc.VerifyAccess(pair.Access)
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	svc, _, _ := newTestTokenService(t, TokenConfig{})
	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)

	_, err = svc.VerifyAccess(pair.Refresh)
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)

	_, err = svc.VerifyRefresh(context.Background(), pair.Access)
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)

	err = svc.Revoke(context.Background(), pair.Access)
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)
}

func TestVerifyRejectsForeignAndUnsignedTokens(t *testing.T) {
	svc, _, _ := newTestTokenService(t, TokenConfig{Issuer: "account-service"})

	other, _, _ := newTestTokenService(t, TokenConfig{AccessSecret: "another-secret", Issuer: "account-service"})
	foreign, err := other.IssuePair("user-1")
	require.NoError(t, err)
	_, err = svc.VerifyAccess(foreign.Access)
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)

	wrongIssuer, _, _ := newTestTokenService(t, TokenConfig{Issuer: "someone-else"})
	pair, err := wrongIssuer.IssuePair("user-1")
	require.NoError(t, err)
	_, err = svc.VerifyAccess(pair.Access)
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, models.TokenClaims{
		Type: models.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "account-service",
			ExpiresAt: jwt.NewNumericDate(clockBase.Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.VerifyAccess(unsigned)
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)

	_, err = svc.VerifyAccess("not.a.token")
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)
	_, err = svc.VerifyAccess("")
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)
}

func TestSeparateRefreshSecret(t *testing.T) {
	svc, _, _ := newTestTokenService(t, TokenConfig{RefreshSecret: "refresh-secret"})
	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)

	_, err = svc.VerifyRefresh(context.Background(), pair.Refresh)
	require.NoError(t, err)

	sameKey, _, _ := newTestTokenService(t, TokenConfig{})
	_, err = sameKey.VerifyRefresh(context.Background(), pair.Refresh)
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc, store, _ := newTestTokenService(t, TokenConfig{})
	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, svc.Revoke(ctx, pair.Refresh))
	require.NoError(t, svc.Revoke(ctx, pair.Refresh))
	assert.Equal(t, 1, store.len())

	_, err = svc.VerifyRefresh(ctx, pair.Refresh)
	assert.ErrorIs(t, err, appErrors.ErrTokenRevoked)

	// access tokens are unaffected by refresh revocation
	_, err = svc.VerifyAccess(pair.Access)
	assert.NoError(t, err)
}

func TestRevokeExpiredTokenFails(t *testing.T) {
	svc, store, clock := newTestTokenService(t, TokenConfig{})
	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)

	clock.Set(clockBase.Add(24 * time.Hour))
	err = svc.Revoke(context.Background(), pair.Refresh)
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)
	assert.Equal(t, 0, store.len())
}

func TestRefreshRotates(t *testing.T) {
	svc, _, clock := newTestTokenService(t, TokenConfig{RotateRefresh: true})
	ctx := context.Background()
	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)

	clock.Set(clockBase.Add(time.Minute))
	next, err := svc.Refresh(ctx, pair.Refresh)
	require.NoError(t, err)
	assert.NotEqual(t, pair.Refresh, next.Refresh)
	assert.NotEqual(t, pair.Access, next.Access)

	claims, err := svc.VerifyAccess(next.Access)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())

	_, err = svc.Refresh(ctx, pair.Refresh)
	assert.ErrorIs(t, err, appErrors.ErrTokenRevoked)

	_, err = svc.VerifyRefresh(ctx, next.Refresh)
	assert.NoError(t, err)
}

func TestRefreshRotationHasSingleWinner(t *testing.T) {
	svc, _, _ := newTestTokenService(t, TokenConfig{RotateRefresh: true})
	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(context.Background(), pair.Refresh)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, revoked int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, appErrors.ErrTokenRevoked):
			revoked++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, revoked)
}

func TestRefreshWithoutRotation(t *testing.T) {
	svc, store, _ := newTestTokenService(t, TokenConfig{RotateRefresh: false})
	ctx := context.Background()
	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, pair.Refresh)
	require.NoError(t, err)
	assert.Empty(t, next.Refresh)
	assert.True(t, pair.RefreshExpiresAt.Equal(next.RefreshExpiresAt))
	assert.Equal(t, 0, store.len())

	_, err = svc.Refresh(ctx, pair.Refresh)
	assert.NoError(t, err)
}

func TestVerifyRefreshFailsClosedOnStoreError(t *testing.T) {
	svc, store, _ := newTestTokenService(t, TokenConfig{})
	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)

	store.isRevokedErr = errors.New("db down")
	_, err = svc.VerifyRefresh(context.Background(), pair.Refresh)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestSweepPurgesExpiredEntries(t *testing.T) {
	svc, store, clock := newTestTokenService(t, TokenConfig{})
	ctx := context.Background()

	first, err := svc.IssuePair("user-1")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, first.Refresh))

	clock.Set(clockBase.Add(12 * time.Hour))
	second, err := svc.IssuePair("user-2")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, second.Refresh))
	require.Equal(t, 2, store.len())

	clock.Set(clockBase.Add(24 * time.Hour))
	svc.Sweep(ctx)
	assert.Equal(t, 1, store.len())
}
