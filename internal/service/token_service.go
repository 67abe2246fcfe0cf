package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/account-service/internal/models"
	appErrors "github.com/noah-isme/account-service/pkg/errors"
)

// RevocationStore persists the set of revoked refresh-token ids.
type RevocationStore interface {
	Revoke(ctx context.Context, token models.RevokedToken) (bool, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenConfig defines signing keys and lifetimes.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	RotateRefresh bool
	SweepInterval time.Duration
}

// TokenService issues, verifies and revokes signed bearer tokens.
type TokenService struct {
	store   RevocationStore
	cfg     TokenConfig
	logger  *zap.Logger
	metrics *MetricsService
	now     func() time.Time
}

// NewTokenService constructs a TokenService. The refresh secret falls back to the access secret.
func NewTokenService(store RevocationStore, cfg TokenConfig, logger *zap.Logger, metrics *MetricsService) (*TokenService, error) {
	if store == nil {
		return nil, errors.New("token service: revocation store is required")
	}
	if cfg.AccessSecret == "" {
		return nil, errors.New("token service: access secret is required")
	}
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = cfg.AccessSecret
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// IssuePair signs a fresh access and refresh token for userID.
func (s *TokenService) IssuePair(userID string) (*models.TokenPair, error) {
	access, accessExp, err := s.sign(userID, models.TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.sign(userID, models.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	return &models.TokenPair{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess validates an access token and returns its claims.
func (s *TokenService) VerifyAccess(token string) (*models.TokenClaims, error) {
	return s.parse(token, models.TokenTypeAccess)
}

// ParseRefresh validates signature, type and expiry of a refresh token without
// consulting the revocation set.
func (s *TokenService) ParseRefresh(token string) (*models.TokenClaims, error) {
	return s.parse(token, models.TokenTypeRefresh)
}

// VerifyRefresh validates a refresh token and rejects it when revoked.
func (s *TokenService) VerifyRefresh(ctx context.Context, token string) (*models.TokenClaims, error) {
	claims, err := s.ParseRefresh(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.store.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check token revocation")
	}
	if revoked {
		return nil, appErrors.ErrTokenRevoked
	}
	return claims, nil
}

// Revoke adds a valid refresh token to the revocation set. Revoking an
// already revoked token succeeds.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	claims, err := s.ParseRefresh(token)
	if err != nil {
		return err
	}
	_, err = s.RevokeClaims(ctx, claims)
	return err
}

// RevokeClaims records claims.ID as revoked. It reports whether this call
// inserted the entry.
func (s *TokenService) RevokeClaims(ctx context.Context, claims *models.TokenClaims) (bool, error) {
	if claims == nil || claims.ID == "" || claims.Type != models.TokenTypeRefresh {
		return false, appErrors.ErrInvalidToken
	}
	entry := models.RevokedToken{
		JTI:       claims.ID,
		UserID:    claims.Subject,
		RevokedAt: s.now(),
	}
	if claims.ExpiresAt != nil {
		entry.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	inserted, err := s.store.Revoke(ctx, entry)
	if err != nil {
		return false, appErrors.Internal(err, "failed to revoke token")
	}
	if inserted {
		s.metrics.RecordRevocation()
	}
	return inserted, nil
}

// Refresh exchanges a valid refresh token for new credentials. With rotation
// enabled the presented token is revoked and only one concurrent caller wins.
func (s *TokenService) Refresh(ctx context.Context, token string) (*models.TokenPair, error) {
	claims, err := s.VerifyRefresh(ctx, token)
	if err != nil {
		return nil, err
	}

	if !s.cfg.RotateRefresh {
		access, accessExp, err := s.sign(claims.Subject, models.TokenTypeAccess)
		if err != nil {
			return nil, err
		}
		return &models.TokenPair{
			Access:           access,
			AccessExpiresAt:  accessExp,
			RefreshExpiresAt: claims.ExpiresAt.Time.UTC(),
		}, nil
	}

	inserted, err := s.RevokeClaims(ctx, claims)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, appErrors.ErrTokenRevoked
	}
	return s.IssuePair(claims.Subject)
}

// Sweep removes revocation entries whose tokens can no longer verify.
func (s *TokenService) Sweep(ctx context.Context) {
	n, err := s.store.PurgeExpired(ctx, s.now())
	if err != nil {
		s.logger.Warn("revocation sweep failed", zap.Error(err))
		return
	}
	s.metrics.RecordPurge(n)
	if n > 0 {
		s.logger.Debug("revocation sweep", zap.Int64("purged", n))
	}
}

// StartSweeper runs Sweep periodically until ctx is cancelled.
func (s *TokenService) StartSweeper(ctx context.Context) {
	if s.cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

func (s *TokenService) secret(tokenType models.TokenType) []byte {
	if tokenType == models.TokenTypeRefresh {
		return []byte(s.cfg.RefreshSecret)
	}
	return []byte(s.cfg.AccessSecret)
}

func (s *TokenService) ttl(tokenType models.TokenType) time.Duration {
	if tokenType == models.TokenTypeRefresh {
		return s.cfg.RefreshTTL
	}
	return s.cfg.AccessTTL
}

func (s *TokenService) sign(userID string, tokenType models.TokenType) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl(tokenType))

	claims := models.TokenClaims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if s.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.cfg.Audience}
	}
	if tokenType == models.TokenTypeRefresh {
		claims.ID = uuid.NewString()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret(tokenType))
	if err != nil {
		return "", time.Time{}, appErrors.Internal(err, "failed to sign token")
	}
	s.metrics.RecordTokenIssued(tokenType)
	return signed, claims.ExpiresAt.Time.UTC(), nil
}

func (s *TokenService) parse(token string, expected models.TokenType) (*models.TokenClaims, error) {
	if token == "" {
		return nil, appErrors.ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	if s.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.cfg.Audience))
	}

	claims := &models.TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret(expected), nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, appErrors.ErrInvalidToken.Message)
	}
	if claims.Type != expected || claims.Subject == "" {
		return nil, appErrors.ErrInvalidToken
	}
	if expected == models.TokenTypeRefresh && claims.ID == "" {
		return nil, appErrors.ErrInvalidToken
	}
	return claims, nil
}
