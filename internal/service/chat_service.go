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

	"github.com/ravi-anand/chatwave-api/internal/dto"
	"github.com/ravi-anand/chatwave-api/internal/models"
	"github.com/ravi-anand/chatwave-api/internal/repository"
	"github.com/ravi-anand/chatwave-api/pkg/apperrors"
)

// ChatService owns the chat directory: direct-chat deduplication, group
// membership and admin authority.
type ChatService interface {
	AccessChat(ctx context.Context, requesterID, otherUserID uint) (dto.ChatView, error)
	ListChats(ctx context.Context, requesterID uint) ([]dto.ChatView, error)
	CreateGroupChat(ctx context.Context, requesterID uint, name string, memberIDs []uint) (dto.ChatView, error)
	RenameChat(ctx context.Context, chatID uint, name string) (dto.ChatView, error)
	AddMember(ctx context.Context, chatID, userID uint) (dto.ChatView, error)
	RemoveMember(ctx context.Context, requesterID, chatID, userID uint) (dto.ChatView, error)
}

// LatestMessageSource supplies the cached newest message of a chat. The
// message service implements it over redis; the chat list prefers it over
// the row loaded with the chat, which can lag behind a concurrent send.
type LatestMessageSource interface {
	CachedLatest(ctx context.Context, chatID uint) *dto.MessageView
}

type chatService struct {
	chats     repository.ChatRepository
	users     repository.UserRepository
	latest    LatestMessageSource
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewChatService constructs the chat directory service. latest may be nil;
// chat views then carry only the persisted latest-message row.
func NewChatService(chats repository.ChatRepository, users repository.UserRepository, latest LatestMessageSource, validate *validator.Validate, logger zerolog.Logger) ChatService {
	return &chatService{
		chats:     chats,
		users:     users,
		latest:    latest,
		validator: validate,
		logger:    logger.With().Str("component", "chat_service").Logger(),
		tracer:    otel.Tracer("github.com/ravi-anand/chatwave-api/internal/service/chat"),
	}
}

// AccessChat returns the direct chat between the requester and the other
// user, creating it on first use. Losing the creation race against a
// concurrent duplicate call surfaces as a duplicate pair_key, in which case
// the winner's chat is re-read and returned; both callers observe one chat.
func (s *chatService) AccessChat(ctx context.Context, requesterID, otherUserID uint) (dto.ChatView, error) {
	if otherUserID == 0 {
		return dto.ChatView{}, apperrors.InvalidArg("userId is required")
	}
	if otherUserID == requesterID {
		return dto.ChatView{}, apperrors.InvalidArg("cannot open a direct chat with yourself")
	}

	spanCtx, span := s.tracer.Start(ctx, "chats.access", trace.WithAttributes(
		attribute.Int64("chat.requester_id", int64(requesterID)),
		attribute.Int64("chat.other_user_id", int64(otherUserID)),
	))
	defer span.End()

	other, err := s.users.GetByID(spanCtx, otherUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ChatView{}, apperrors.NotFound("user not found")
		}
		span.RecordError(err)
		return dto.ChatView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to load user", err)
	}

	requester, err := s.users.GetByID(spanCtx, requesterID)
	if err != nil {
		span.RecordError(err)
		return dto.ChatView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to load requester", err)
	}

	pairKey := repository.DirectPairKey(requesterID, otherUserID)

	if existing, err := s.chats.FindDirectByPairKey(spanCtx, pairKey); err == nil {
		return dto.NewChatView(existing), nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		return dto.ChatView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to look up chat", err)
	}

	chat := models.Chat{
		PairKey: &pairKey,
		Users:   []models.User{requester, other},
	}
	if err := s.chats.Create(spanCtx, &chat); err != nil {
		if repository.IsDuplicateKey(err) {
			winner, findErr := s.chats.FindDirectByPairKey(spanCtx, pairKey)
			if findErr != nil {
				span.RecordError(findErr)
				return dto.ChatView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to resolve chat race", findErr)
			}
			return dto.NewChatView(winner), nil
		}
		span.RecordError(err)
		return dto.ChatView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to create chat", err)
	}

	s.logger.Info().Uint("chat_id", chat.ID).Str("pair_key", pairKey).Msg("direct chat created")

	return s.populatedView(spanCtx, chat.ID)
}

func (s *chatService) ListChats(ctx context.Context, requesterID uint) ([]dto.ChatView, error) {
	chats, err := s.chats.ListForUser(ctx, requesterID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to list chats", err)
	}

	views := dto.NewChatViewSlice(chats)
	if s.latest != nil {
		for i := range views {
			if cached := s.latest.CachedLatest(ctx, views[i].ID); cached != nil {
				views[i].LatestMessage = &dto.LatestMessageView{
					ID:        cached.ID,
					Content:   cached.Content,
					Sender:    cached.Sender,
					CreatedAt: cached.CreatedAt,
				}
			}
		}
	}
	return views, nil
}

func (s *chatService) CreateGroupChat(ctx context.Context, requesterID uint, name string, memberIDs []uint) (dto.ChatView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return dto.ChatView{}, apperrors.InvalidArg("group name is required")
	}

	distinct := make([]uint, 0, len(memberIDs))
	seen := map[uint]struct{}{requesterID: {}}
	for _, id := range memberIDs {
		if id == 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, id)
	}
	if len(distinct) < 2 {
		return dto.ChatView{}, apperrors.InvalidArg("more than 2 users are required to form a group chat")
	}

	spanCtx, span := s.tracer.Start(ctx, "chats.create_group", trace.WithAttributes(
		attribute.Int64("chat.admin_id", int64(requesterID)),
		attribute.Int("chat.member_count", len(distinct)+1),
	))
	defer span.End()

	members, err := s.users.ListByIDs(spanCtx, append(distinct, requesterID))
	if err != nil {
		span.RecordError(err)
		return dto.ChatView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to load members", err)
	}
	if len(members) != len(distinct)+1 {
		return dto.ChatView{}, apperrors.NotFound("one or more users do not exist")
	}

	chat := models.Chat{
		Name:         name,
		IsGroupChat:  true,
		GroupAdminID: &requesterID,
		Users:        members,
	}
	if err := s.chats.Create(spanCtx, &chat); err != nil {
		span.RecordError(err)
		return dto.ChatView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to create group chat", err)
	}

	s.logger.Info().Uint("chat_id", chat.ID).Uint("admin_id", requesterID).Msg("group chat created")

	return s.populatedView(spanCtx, chat.ID)
}

func (s *chatService) RenameChat(ctx context.Context, chatID uint, name string) (dto.ChatView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return dto.ChatView{}, apperrors.InvalidArg("chat name is required")
	}

	if err := s.chats.Rename(ctx, chatID, name); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ChatView{}, apperrors.NotFound("chat not found")
		}
		return dto.ChatView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to rename chat", err)
	}

	return s.populatedView(ctx, chatID)
}

// AddMember appends a user to a group chat. Any authenticated caller may
// add; only removal is admin-gated. This asymmetry is inherited deliberately
// from the original behavior.
func (s *chatService) AddMember(ctx context.Context, chatID, userID uint) (dto.ChatView, error) {
	chat, err := s.loadGroup(ctx, chatID)
	if err != nil {
		return dto.ChatView{}, err
	}

	if chat.HasMember(userID) {
		return dto.NewChatView(chat), nil
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ChatView{}, apperrors.NotFound("user not found")
		}
		return dto.ChatView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to load user", err)
	}

	if err := s.chats.AddMember(ctx, chatID, user); err != nil {
		return dto.ChatView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to add member", err)
	}

	return s.populatedView(ctx, chatID)
}

func (s *chatService) RemoveMember(ctx context.Context, requesterID, chatID, userID uint) (dto.ChatView, error) {
	chat, err := s.loadGroup(ctx, chatID)
	if err != nil {
		return dto.ChatView{}, err
	}

	if chat.GroupAdminID == nil || *chat.GroupAdminID != requesterID {
		return dto.ChatView{}, apperrors.Forbidden("only the group admin can remove users")
	}
	if userID == *chat.GroupAdminID {
		return dto.ChatView{}, apperrors.InvalidArg("the group admin cannot be removed")
	}
	if !chat.HasMember(userID) {
		return dto.ChatView{}, apperrors.NotFound("user is not a member of this chat")
	}

	if err := s.chats.RemoveMember(ctx, chatID, models.User{ID: userID}); err != nil {
		return dto.ChatView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to remove member", err)
	}

	return s.populatedView(ctx, chatID)
}

func (s *chatService) loadGroup(ctx context.Context, chatID uint) (models.Chat, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Chat{}, apperrors.NotFound("chat not found")
		}
		return models.Chat{}, apperrors.Wrap(apperrors.CodeInternal, "failed to load chat", err)
	}
	if !chat.IsGroupChat {
		return models.Chat{}, apperrors.InvalidArg("not a group chat")
	}
	return chat, nil
}

func (s *chatService) populatedView(ctx context.Context, chatID uint) (dto.ChatView, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return dto.ChatView{}, apperrors.Wrap(apperrors.CodeInternal, "failed to load chat", err)
	}
	return dto.NewChatView(chat), nil
}
