package service

import (
	"context"
	"errors"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/ravi-anand/chatwave-api/internal/auth"
	"github.com/ravi-anand/chatwave-api/internal/dto"
	"github.com/ravi-anand/chatwave-api/internal/models"
	"github.com/ravi-anand/chatwave-api/internal/repository"
	"github.com/ravi-anand/chatwave-api/pkg/apperrors"
)

// AvatarStore uploads and removes avatar assets in the external blob store.
type AvatarStore interface {
	Upload(ctx context.Context, name string, data []byte) (url string, publicID string, err error)
	Destroy(ctx context.Context, publicID string) error
}

// UserService owns registration, profile updates and the member search used
// to start new chats.
type UserService interface {
	Register(ctx context.Context, payload dto.RegisterRequest, avatarName string, avatar []byte) (dto.ProfileView, error)
	Search(ctx context.Context, requesterID uint, keyword string) ([]dto.UserView, error)
	UpdateProfile(ctx context.Context, userID uint, name string, avatarName string, avatar []byte) (dto.ProfileView, error)
}

type userService struct {
	users     repository.UserRepository
	avatars   AvatarStore
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	maxAvatar int64
}

// NewUserService constructs the user service.
func NewUserService(users repository.UserRepository, avatars AvatarStore, validate *validator.Validate, maxAvatarBytes int64, logger zerolog.Logger) UserService {
	if maxAvatarBytes <= 0 {
		maxAvatarBytes = 5 * 1024 * 1024
	}
	return &userService{
		users:     users,
		avatars:   avatars,
		validator: validate,
		logger:    logger.With().Str("component", "user_service").Logger(),
		tracer:    otel.Tracer("github.com/ravi-anand/chatwave-api/internal/service/user"),
		maxAvatar: maxAvatarBytes,
	}
}

func (s *userService) Register(ctx context.Context, payload dto.RegisterRequest, avatarName string, avatar []byte) (dto.ProfileView, error) {
	payload.Name = strings.TrimSpace(payload.Name)
	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))

	if err := s.validator.Struct(payload); err != nil {
		return dto.ProfileView{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid registration payload", err)
	}
	if len(avatar) == 0 {
		return dto.ProfileView{}, apperrors.InvalidArg("avatar image is required")
	}

	spanCtx, span := s.tracer.Start(ctx, "users.register", trace.WithAttributes(
		attribute.String("user.email", payload.Email),
	))
	defer span.End()

	if _, err := s.users.GetByEmail(spanCtx, payload.Email); err == nil {
		return dto.ProfileView{}, apperrors.AlreadyExists("email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		return dto.ProfileView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to check email", err)
	}

	if err := s.checkAvatar(avatar); err != nil {
		return dto.ProfileView{}, err
	}

	url, publicID, err := s.avatars.Upload(spanCtx, avatarName, avatar)
	if err != nil {
		span.RecordError(err)
		return dto.ProfileView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to upload avatar", err)
	}

	hash, err := auth.HashPassword(payload.Password)
	if err != nil {
		s.discardAvatar(spanCtx, publicID)
		return dto.ProfileView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to hash password", err)
	}

	user := models.User{
		Name:           payload.Name,
		Email:          payload.Email,
		PasswordHash:   hash,
		AvatarURL:      url,
		AvatarPublicID: publicID,
	}

	if err := s.users.Create(spanCtx, &user); err != nil {
		span.RecordError(err)
		s.discardAvatar(spanCtx, publicID)
		if repository.IsDuplicateKey(err) {
			return dto.ProfileView{}, apperrors.AlreadyExists("email already exists")
		}
		return dto.ProfileView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to create user", err)
	}

	s.logger.Info().Uint("user_id", user.ID).Msg("user registered")

	return dto.NewProfileView(user), nil
}

func (s *userService) Search(ctx context.Context, requesterID uint, keyword string) ([]dto.UserView, error) {
	users, err := s.users.Search(ctx, keyword, requesterID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to search users", err)
	}
	return dto.NewUserViewSlice(users), nil
}

func (s *userService) UpdateProfile(ctx context.Context, userID uint, name string, avatarName string, avatar []byte) (dto.ProfileView, error) {
	name = strings.TrimSpace(name)
	if name == "" && len(avatar) == 0 {
		return dto.ProfileView{}, apperrors.InvalidArg("nothing to update")
	}

	spanCtx, span := s.tracer.Start(ctx, "users.update_profile", trace.WithAttributes(
		attribute.Int64("user.id", int64(userID)),
	))
	defer span.End()

	user, err := s.users.GetByID(spanCtx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ProfileView{}, apperrors.NotFound("user not found")
		}
		span.RecordError(err)
		return dto.ProfileView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to load user", err)
	}

	if name != "" {
		user.Name = name
	}

	previousAvatar := ""
	if len(avatar) > 0 {
		if err := s.checkAvatar(avatar); err != nil {
			return dto.ProfileView{}, err
		}
		url, publicID, err := s.avatars.Upload(spanCtx, avatarName, avatar)
		if err != nil {
			span.RecordError(err)
			return dto.ProfileView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to upload avatar", err)
		}
		previousAvatar = user.AvatarPublicID
		user.AvatarURL = url
		user.AvatarPublicID = publicID
	}

	if err := s.users.UpdateProfile(spanCtx, &user); err != nil {
		span.RecordError(err)
		if user.AvatarPublicID != previousAvatar {
			s.discardAvatar(spanCtx, user.AvatarPublicID)
		}
		return dto.ProfileView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to update profile", err)
	}

	if previousAvatar != "" {
		s.discardAvatar(spanCtx, previousAvatar)
	}

	return dto.NewProfileView(user), nil
}

func (s *userService) checkAvatar(avatar []byte) error {
	if int64(len(avatar)) > s.maxAvatar {
		return apperrors.InvalidArg("avatar exceeds the size limit")
	}

	mime := mimetype.Detect(avatar)
	if !strings.HasPrefix(mime.String(), "image/") {
		return apperrors.InvalidArg("avatar must be an image")
	}

	return nil
}

func (s *userService) discardAvatar(ctx context.Context, publicID string) {
	if publicID == "" {
		return
	}
	if err := s.avatars.Destroy(ctx, publicID); err != nil {
		s.logger.Warn().Err(err).Str("public_id", publicID).Msg("failed to remove orphaned avatar")
	}
}
