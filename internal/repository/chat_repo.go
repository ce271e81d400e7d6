package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ravi-anand/chatwave-api/internal/models"
)

// ChatRepository persists chat entities and their membership.
type ChatRepository interface {
	Create(ctx context.Context, chat *models.Chat) error
	GetByID(ctx context.Context, id uint) (models.Chat, error)
	FindDirectByPairKey(ctx context.Context, pairKey string) (models.Chat, error)
	ListForUser(ctx context.Context, userID uint) ([]models.Chat, error)
	Rename(ctx context.Context, id uint, name string) error
	AddMember(ctx context.Context, chatID uint, user models.User) error
	RemoveMember(ctx context.Context, chatID uint, user models.User) error
	SetLatestMessage(ctx context.Context, chatID, messageID uint) error
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository constructs a chat repository backed by GORM.
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

// DirectPairKey derives the unique key for the unordered user pair of a
// direct chat.
func DirectPairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// IsDuplicateKey reports whether the error came from a violated unique
// constraint, which find-or-create uses to detect a lost creation race.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique") || strings.Contains(message, "duplicate key")
}

func (r *chatRepository) Create(ctx context.Context, chat *models.Chat) error {
	return r.db.WithContext(ctx).Create(chat).Error
}

func (r *chatRepository) GetByID(ctx context.Context, id uint) (models.Chat, error) {
	var chat models.Chat
	err := r.populated(ctx).First(&chat, id).Error
	if err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

func (r *chatRepository) FindDirectByPairKey(ctx context.Context, pairKey string) (models.Chat, error) {
	var chat models.Chat
	err := r.populated(ctx).
		Where("is_group_chat = ? AND pair_key = ?", false, pairKey).
		First(&chat).Error
	if err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

func (r *chatRepository) ListForUser(ctx context.Context, userID uint) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.populated(ctx).
		Joins("JOIN chat_users ON chat_users.chat_id = chats.id").
		Where("chat_users.user_id = ?", userID).
		Order("chats.updated_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *chatRepository) Rename(ctx context.Context, id uint, name string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Chat{}).
		Where("id = ?", id).
		Update("name", name)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *chatRepository) AddMember(ctx context.Context, chatID uint, user models.User) error {
	chat := models.Chat{ID: chatID}
	return r.db.WithContext(ctx).Model(&chat).Association("Users").Append(&user)
}

func (r *chatRepository) RemoveMember(ctx context.Context, chatID uint, user models.User) error {
	chat := models.Chat{ID: chatID}
	return r.db.WithContext(ctx).Model(&chat).Association("Users").Delete(&user)
}

// SetLatestMessage moves the chat's latest-message pointer and refreshes
// updated_at so the directory listing resorts.
func (r *chatRepository) SetLatestMessage(ctx context.Context, chatID, messageID uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Chat{}).
		Where("id = ?", chatID).
		Updates(map[string]interface{}{
			"latest_message_id": messageID,
			"updated_at":        time.Now(),
		}).Error
}

func (r *chatRepository) populated(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Users").
		Preload("GroupAdmin").
		Preload("LatestMessage").
		Preload("LatestMessage.Sender")
}
