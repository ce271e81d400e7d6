package dto

import (
	"time"

	"github.com/ravi-anand/chatwave-api/internal/models"
)

// AccessChatRequest requests the direct chat with another user, creating it
// on first use.
type AccessChatRequest struct {
	UserID uint `json:"userId" validate:"required"`
}

// CreateGroupChatRequest creates a group chat. Users is the raw JSON-encoded
// array of member ids exactly as the original web client posts it; the
// handler decodes it before calling the service.
type CreateGroupChatRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=255"`
	Users string `json:"users" validate:"required"`
}

// RenameChatRequest renames a chat.
type RenameChatRequest struct {
	ChatID   uint   `json:"chatId" validate:"required"`
	ChatName string `json:"chatName" validate:"required,min=1,max=255"`
}

// GroupMemberRequest adds or removes a group member.
type GroupMemberRequest struct {
	ChatID uint `json:"chatId" validate:"required"`
	UserID uint `json:"userId" validate:"required"`
}

// LatestMessageView is the latest-message projection embedded in ChatView.
type LatestMessageView struct {
	ID        uint      `json:"id"`
	Content   string    `json:"content"`
	Sender    UserView  `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatView is the populated chat projection returned to clients.
type ChatView struct {
	ID            uint               `json:"id"`
	Name          string             `json:"name"`
	IsGroupChat   bool               `json:"is_group_chat"`
	Users         []UserView         `json:"users"`
	GroupAdmin    *UserView          `json:"group_admin,omitempty"`
	LatestMessage *LatestMessageView `json:"latest_message,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// NewChatView assembles the populated view of a chat. Users, GroupAdmin and
// LatestMessage.Sender must be preloaded by the repository.
func NewChatView(chat models.Chat) ChatView {
	view := ChatView{
		ID:          chat.ID,
		Name:        chat.Name,
		IsGroupChat: chat.IsGroupChat,
		Users:       NewUserViewSlice(chat.Users),
		CreatedAt:   chat.CreatedAt,
		UpdatedAt:   chat.UpdatedAt,
	}

	if chat.GroupAdmin != nil {
		admin := NewUserView(*chat.GroupAdmin)
		view.GroupAdmin = &admin
	}

	if chat.LatestMessage != nil {
		view.LatestMessage = &LatestMessageView{
			ID:        chat.LatestMessage.ID,
			Content:   chat.LatestMessage.Content,
			Sender:    NewUserView(chat.LatestMessage.Sender),
			CreatedAt: chat.LatestMessage.CreatedAt,
		}
	}

	return view
}

// NewChatViewSlice converts a slice of chat models into views.
func NewChatViewSlice(chats []models.Chat) []ChatView {
	out := make([]ChatView, 0, len(chats))
	for _, chat := range chats {
		out = append(out, NewChatView(chat))
	}
	return out
}
