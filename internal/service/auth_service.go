package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/account-service/internal/models"
	"github.com/noah-isme/account-service/internal/repository"
	appErrors "github.com/noah-isme/account-service/pkg/errors"
	"github.com/noah-isme/account-service/pkg/middleware/requestid"
)

const tracerName = "github.com/noah-isme/account-service/internal/service"

const dummyPassword = "timing-equalizer-password"

type credentialStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

type tokenManager interface {
	IssuePair(userID string) (*models.TokenPair, error)
	ParseRefresh(token string) (*models.TokenClaims, error)
	RevokeClaims(ctx context.Context, claims *models.TokenClaims) (bool, error)
	Refresh(ctx context.Context, token string) (*models.TokenPair, error)
}

// AuthService orchestrates registration, login and token lifecycle.
type AuthService struct {
	users     credentialStore
	hasher    PasswordHasher
	tokens    tokenManager
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	policy    PasswordPolicy
	tracer    trace.Tracer

	dummyMu   sync.Mutex
	dummyHash string
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users credentialStore, hasher PasswordHasher, tokens tokenManager, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, policy PasswordPolicy) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	if policy.MaxLength == 0 {
		policy.MaxLength = DefaultPasswordPolicy().MaxLength
	}
	return &AuthService{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		policy:    policy,
		tracer:    otel.Tracer(tracerName),
	}
}

// Register creates an account and signs the user in.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (resp *models.AuthResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Register")
	defer func() { endSpan(span, err) }()

	req.Email = models.NormalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	defer func() {
		s.audit(ctx, models.AuthEventRegister, err, zap.String("email", req.Email), zap.String("ip", req.IP))
	}()

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid registration payload")
	}
	if err := s.policy.Check(req.Password, req.Email, req.Name); err != nil {
		return nil, err
	}

	hash, err := s.hashPassword(ctx, req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{Email: req.Email, Name: req.Name, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, appErrors.ErrConflict
		}
		return nil, appErrors.Internal(err, "failed to create user")
	}
	span.SetAttributes(attribute.String("user.id", user.ID))

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, err
	}

	return &models.AuthResponse{
		Message: "User registered successfully",
		User:    user.Profile(),
		Tokens:  *pair,
	}, nil
}

// Login authenticates credentials and returns a fresh token pair.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (resp *models.AuthResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Login")
	defer func() { endSpan(span, err) }()

	req.Email = models.NormalizeEmail(req.Email)
	defer func() {
		s.audit(ctx, models.AuthEventLogin, err, zap.String("email", req.Email), zap.String("ip", req.IP))
	}()

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.equalizeTiming(ctx, req.Password)
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Internal(err, "failed to fetch user")
	}

	ok, err := s.hasher.Verify(ctx, req.Password, user.PasswordHash)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to verify password")
	}
	if !ok {
		return nil, appErrors.ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user.ID, req.Password)
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, err
	}

	return &models.AuthResponse{
		Message: "Login successful",
		User:    user.Profile(),
		Tokens:  *pair,
	}, nil
}

// Logout revokes a refresh token owned by userID.
func (s *AuthService) Logout(ctx context.Context, userID string, req models.LogoutRequest) (err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Logout")
	defer func() { endSpan(span, err) }()

	fields := []zap.Field{zap.String("user_id", userID), zap.String("ip", req.IP)}
	defer func() { s.audit(ctx, models.AuthEventLogout, err, fields...) }()

	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "refresh_token is required")
	}

	claims, err := s.tokens.ParseRefresh(req.RefreshToken)
	if err != nil {
		return appErrors.Validation(err, "invalid refresh token")
	}
	fields = append(fields, zap.String("jti", claims.ID))
	if claims.Subject != userID {
		return appErrors.Validation(nil, "invalid refresh token")
	}

	if _, err := s.tokens.RevokeClaims(ctx, claims); err != nil {
		return err
	}
	return nil
}

// ChangePassword replaces the password after re-verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) (err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.ChangePassword")
	defer func() { endSpan(span, err) }()
	defer func() { s.audit(ctx, models.AuthEventPasswordChange, err, zap.String("user_id", userID)) }()

	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid password change payload")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Internal(err, "failed to fetch user")
	}

	ok, err := s.hasher.Verify(ctx, req.OldPassword, user.PasswordHash)
	if err != nil {
		return appErrors.Internal(err, "failed to verify password")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrInvalidCredentials, "current password is incorrect")
	}

	if req.NewPassword == req.OldPassword {
		return appErrors.Validation(nil, "new password must differ from the current password")
	}
	if err := s.policy.Check(req.NewPassword, user.Email, user.Name); err != nil {
		return err
	}

	hash, err := s.hashPassword(ctx, req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Internal(err, "failed to update password")
	}
	return nil
}

// Refresh exchanges a refresh token for new credentials.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (pair *models.TokenPair, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Refresh")
	defer func() { endSpan(span, err) }()

	fields := []zap.Field{zap.String("ip", req.IP)}
	defer func() { s.audit(ctx, models.AuthEventRefresh, err, fields...) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "refresh_token is required")
	}
	if claims, perr := s.tokens.ParseRefresh(req.RefreshToken); perr == nil {
		fields = append(fields, zap.String("user_id", claims.Subject), zap.String("jti", claims.ID))
	}

	return s.tokens.Refresh(ctx, req.RefreshToken)
}

func (s *AuthService) hashPassword(ctx context.Context, password string) (string, error) {
	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", appErrors.Validation(err, "password is too long")
		}
		return "", appErrors.Internal(err, "failed to hash password")
	}
	return hash, nil
}

// equalizeTiming spends the same hashing work as a real verification so
// unknown emails are not distinguishable by latency.
func (s *AuthService) equalizeTiming(ctx context.Context, password string) {
	hash := s.timingHash(ctx)
	if hash == "" {
		return
	}
	_, _ = s.hasher.Verify(ctx, password, hash)
}

// timingHash prepares the dummy hash on first use and retries after a
// failure. It runs detached from ctx so a cancelled request cannot leave it
// unset.
func (s *AuthService) timingHash(ctx context.Context) string {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()
	if s.dummyHash != "" {
		return s.dummyHash
	}
	hash, err := s.hasher.Hash(context.WithoutCancel(ctx), dummyPassword)
	if err != nil {
		s.logger.Warn("failed to prepare dummy hash", zap.Error(err))
		return ""
	}
	s.dummyHash = hash
	return hash
}

func (s *AuthService) rehash(ctx context.Context, userID, password string) {
	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		s.logger.Warn("failed to rehash password", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to store rehashed password", zap.String("user_id", userID), zap.Error(err))
	}
}

// audit writes one structured line per authentication event. Passwords and
// raw tokens never reach the log.
func (s *AuthService) audit(ctx context.Context, event models.AuthEvent, err error, fields ...zap.Field) {
	outcome := models.OutcomeSuccess
	if err != nil {
		outcome = models.OutcomeFailure
	}
	s.metrics.RecordAuthEvent(event, outcome)

	fields = append(fields, zap.String("event", string(event)), zap.String("outcome", outcome))
	if id := requestid.FromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if err == nil {
		s.logger.Info("auth event", fields...)
		return
	}

	appErr := appErrors.FromError(err)
	fields = append(fields, zap.String("code", appErr.Code))
	if appErr.Status >= 500 {
		s.logger.Error("auth event", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Warn("auth event", fields...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, appErrors.FromError(err).Code)
	}
	span.End()
}
