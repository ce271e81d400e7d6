package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/ravi-anand/chatwave-api/internal/auth"
	"github.com/ravi-anand/chatwave-api/internal/dto"
	"github.com/ravi-anand/chatwave-api/internal/repository"
	"github.com/ravi-anand/chatwave-api/pkg/apperrors"
)

// AuthService owns login, logout and refresh-credential rotation. Every
// successful login or refresh persists the new refresh token before the pair
// is returned; a persistence failure yields no credentials.
type AuthService interface {
	Login(ctx context.Context, payload dto.LoginRequest) (dto.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (dto.AuthResponse, error)
	Logout(ctx context.Context, userID uint) error
	ChangePassword(ctx context.Context, userID uint, payload dto.ChangePasswordRequest) error
}

type authService struct {
	users     repository.UserRepository
	tokens    *auth.TokenManager
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewAuthService constructs the auth service.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenManager, validate *validator.Validate, logger zerolog.Logger) AuthService {
	return &authService{
		users:     users,
		tokens:    tokens,
		validator: validate,
		logger:    logger.With().Str("component", "auth_service").Logger(),
		tracer:    otel.Tracer("github.com/ravi-anand/chatwave-api/internal/service/auth"),
	}
}

func (s *authService) Login(ctx context.Context, payload dto.LoginRequest) (dto.AuthResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AuthResponse{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid login payload", err)
	}

	spanCtx, span := s.tracer.Start(ctx, "auth.login")
	defer span.End()

	user, err := s.users.GetByEmail(spanCtx, payload.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AuthResponse{}, apperrors.Unauthenticated("invalid email or password")
		}
		span.RecordError(err)
		return dto.AuthResponse{}, apperrors.Wrap(apperrors.CodeInternal, "failed to load user", err)
	}

	if !auth.CheckPassword(user.PasswordHash, payload.Password) {
		return dto.AuthResponse{}, apperrors.Unauthenticated("invalid email or password")
	}

	return s.issue(spanCtx, span, user.ID, user.Email)
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (dto.AuthResponse, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return dto.AuthResponse{}, apperrors.Unauthenticated("refresh token is required")
	}

	spanCtx, span := s.tracer.Start(ctx, "auth.refresh")
	defer span.End()

	userID, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return dto.AuthResponse{}, err
	}

	user, err := s.users.GetByID(spanCtx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AuthResponse{}, apperrors.NotFound("user no longer exists")
		}
		span.RecordError(err)
		return dto.AuthResponse{}, apperrors.Wrap(apperrors.CodeInternal, "failed to load user", err)
	}

	// A rotated-out token still parses; only the single stored credential is
	// accepted, which blocks replay of superseded tokens.
	if user.RefreshToken == nil || *user.RefreshToken != refreshToken {
		return dto.AuthResponse{}, apperrors.TokenMismatch("refresh token has been superseded")
	}

	return s.issue(spanCtx, span, user.ID, user.Email)
}

func (s *authService) issue(ctx context.Context, span trace.Span, userID uint, email string) (dto.AuthResponse, error) {
	span.SetAttributes(attribute.Int64("auth.user_id", int64(userID)))

	pair, err := s.tokens.MintPair(userID, email)
	if err != nil {
		span.RecordError(err)
		return dto.AuthResponse{}, err
	}

	if err := s.users.SetRefreshToken(ctx, userID, &pair.RefreshToken); err != nil {
		span.RecordError(err)
		return dto.AuthResponse{}, apperrors.Wrap(apperrors.CodeInternal, "failed to persist refresh token", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return dto.AuthResponse{}, apperrors.Wrap(apperrors.CodeInternal, "failed to load user", err)
	}

	return dto.AuthResponse{
		User:         dto.NewUserView(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

func (s *authService) Logout(ctx context.Context, userID uint) error {
	if err := s.users.SetRefreshToken(ctx, userID, nil); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "failed to clear refresh token", err)
	}
	s.logger.Info().Uint("user_id", userID).Msg("session ended")
	return nil
}

// ChangePassword verifies the old password before rewriting the hash. The
// stored refresh token is intentionally left untouched: existing sessions
// survive a password change.
func (s *authService) ChangePassword(ctx context.Context, userID uint, payload dto.ChangePasswordRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid password payload", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("user not found")
		}
		return apperrors.Wrap(apperrors.CodeInternal, "failed to load user", err)
	}

	if !auth.CheckPassword(user.PasswordHash, payload.OldPassword) {
		return apperrors.Unauthenticated("old password is incorrect")
	}

	hash, err := auth.HashPassword(payload.NewPassword)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "failed to hash password", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "failed to update password", err)
	}

	return nil
}
