package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/account-service/internal/models"
	appErrors "github.com/noah-isme/account-service/pkg/errors"
)

type profileStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateName(ctx context.Context, id, name string, updatedAt time.Time) error
}

// UserService serves the authenticated user's own profile.
type UserService struct {
	repo      profileStore
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	tracer    trace.Tracer
}

// NewUserService creates an instance of UserService.
func NewUserService(repo profileStore, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &UserService{repo: repo, validator: validate, logger: logger, metrics: metrics, tracer: otel.Tracer(tracerName)}
}

// GetProfile returns the public fields of a user.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	ctx, span := s.tracer.Start(ctx, "UserService.GetProfile")
	defer span.End()

	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := user.Profile()
	return &profile, nil
}

// UpdateProfile applies the provided fields. Email is not mutable here.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (profile *models.UserProfile, err error) {
	ctx, span := s.tracer.Start(ctx, "UserService.UpdateProfile")
	defer func() { endSpan(span, err) }()
	defer func() {
		outcome := models.OutcomeSuccess
		if err != nil {
			outcome = models.OutcomeFailure
		}
		s.metrics.RecordAuthEvent(models.AuthEventProfileUpdate, outcome)
	}()

	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		req.Name = &trimmed
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid profile payload")
	}

	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, appErrors.Validation(nil, "name cannot be blank")
		}
		if *req.Name != user.Name {
			now := time.Now().UTC()
			if err := s.repo.UpdateName(ctx, user.ID, *req.Name, now); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
				}
				return nil, appErrors.Internal(err, "failed to update profile")
			}
			user.Name = *req.Name
			user.UpdatedAt = now
			s.logger.Info("profile updated", zap.String("user_id", user.ID))
		}
	}

	updated := user.Profile()
	return &updated, nil
}

// Stats summarises the account.
func (s *UserService) Stats(ctx context.Context, userID string) (*models.UserStats, error) {
	ctx, span := s.tracer.Start(ctx, "UserService.Stats")
	defer span.End()

	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.UserStats{
		UserID:   user.ID,
		Name:     user.Name,
		Email:    user.Email,
		JoinDate: user.CreatedAt,
	}, nil
}

func (s *UserService) find(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to fetch user")
	}
	return user, nil
}
