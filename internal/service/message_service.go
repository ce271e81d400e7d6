package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/ravi-anand/chatwave-api/internal/dto"
	"github.com/ravi-anand/chatwave-api/internal/models"
	"github.com/ravi-anand/chatwave-api/internal/observability"
	"github.com/ravi-anand/chatwave-api/internal/repository"
	"github.com/ravi-anand/chatwave-api/pkg/apperrors"
)

// MessageService persists messages and assembles populated message views for
// REST responses and realtime fanout payloads.
type MessageService interface {
	Send(ctx context.Context, senderID uint, payload dto.SendMessageRequest) (dto.MessageView, error)
	ListMessages(ctx context.Context, chatID uint) ([]dto.MessageView, error)
	CachedLatest(ctx context.Context, chatID uint) *dto.MessageView
}

type messageService struct {
	messages  repository.MessageRepository
	chats     repository.ChatRepository
	redis     *redis.Client
	cacheKey  string
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	sanitizer *bluemonday.Policy
}

// NewMessageService constructs the message service. redisClient may be nil;
// the latest-message cache then degrades to a no-op.
func NewMessageService(messages repository.MessageRepository, chats repository.ChatRepository, redisClient *redis.Client, channelBase string, cacheTTL time.Duration, validate *validator.Validate, logger zerolog.Logger) MessageService {
	cacheKey := ""
	if channelBase != "" {
		cacheKey = channelBase + ":chat:last"
	}

	return &messageService{
		messages:  messages,
		chats:     chats,
		redis:     redisClient,
		cacheKey:  cacheKey,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger.With().Str("component", "message_service").Logger(),
		tracer:    otel.Tracer("github.com/ravi-anand/chatwave-api/internal/service/message"),
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Send persists the message and moves the chat's latest-message pointer.
// The two steps are not atomic: if the pointer update fails the message
// stays committed and the error surfaces as Internal. Retrying the call
// creates a second message.
func (s *messageService) Send(ctx context.Context, senderID uint, payload dto.SendMessageRequest) (dto.MessageView, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageView{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "content and chatId are required", err)
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if clean == "" {
		return dto.MessageView{}, apperrors.InvalidArg("message content must not be empty")
	}

	spanCtx, span := s.tracer.Start(ctx, "messages.send", trace.WithAttributes(
		attribute.Int64("message.sender_id", int64(senderID)),
		attribute.Int64("message.chat_id", int64(payload.ChatID)),
	))
	defer span.End()

	chat, err := s.chats.GetByID(spanCtx, payload.ChatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MessageView{}, apperrors.InvalidArg("chat not found")
		}
		span.RecordError(err)
		return dto.MessageView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to load chat", err)
	}

	if !chat.HasMember(senderID) {
		return dto.MessageView{}, apperrors.Forbidden("sender is not a member of this chat")
	}

	message := models.Message{
		SenderID: senderID,
		ChatID:   chat.ID,
		Content:  clean,
	}
	if err := s.messages.Create(spanCtx, &message); err != nil {
		span.RecordError(err)
		return dto.MessageView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to persist message", err)
	}

	if err := s.chats.SetLatestMessage(spanCtx, chat.ID, message.ID); err != nil {
		span.RecordError(err)
		return dto.MessageView{}, apperrors.Wrap(apperrors.CodeInternal, "message stored but latest-message pointer update failed", err)
	}

	stored, err := s.messages.GetByID(spanCtx, message.ID)
	if err != nil {
		span.RecordError(err)
		return dto.MessageView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to load message", err)
	}

	view := dto.NewMessageView(stored, chat)
	s.cacheLatest(spanCtx, view)
	observability.MessagesSentTotal().Inc()

	return view, nil
}

func (s *messageService) ListMessages(ctx context.Context, chatID uint) ([]dto.MessageView, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("chat not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to load chat", err)
	}

	messages, err := s.messages.ListByChat(ctx, chatID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to list messages", err)
	}

	return dto.NewMessageViewSlice(messages, chat), nil
}

func (s *messageService) cacheLatest(ctx context.Context, view dto.MessageView) {
	if s.redis == nil || s.cacheKey == "" {
		return
	}

	payload, err := json.Marshal(view)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal message for cache")
		return
	}

	key := fmt.Sprintf("%s:%d", s.cacheKey, view.Chat.ID)
	if err := s.redis.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache latest message")
	}
}

// CachedLatest returns the most recent message view cached for the chat, or
// nil when the cache is cold or disabled. The chat list uses it to surface
// the newest message ahead of the persisted pointer.
func (s *messageService) CachedLatest(ctx context.Context, chatID uint) *dto.MessageView {
	if s.redis == nil || s.cacheKey == "" {
		return nil
	}

	key := fmt.Sprintf("%s:%d", s.cacheKey, chatID)
	result, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		return nil
	}

	var view dto.MessageView
	if err := json.Unmarshal([]byte(result), &view); err != nil {
		s.logger.Warn().Err(err).Msg("failed to unmarshal cached message")
		return nil
	}

	return &view
}
