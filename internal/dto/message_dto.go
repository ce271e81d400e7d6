package dto

import (
	"time"

	"github.com/ravi-anand/chatwave-api/internal/models"
)

// SendMessageRequest posts a new message into a chat.
type SendMessageRequest struct {
	Content string `json:"content" validate:"required,min=1,max=4000"`
	ChatID  uint   `json:"chatId" validate:"required"`
}

// MessageChatView is the chat projection embedded in MessageView. It carries
// the member list so group-chat clients can render sender names without an
// extra fetch.
type MessageChatView struct {
	ID          uint       `json:"id"`
	Name        string     `json:"name"`
	IsGroupChat bool       `json:"is_group_chat"`
	Users       []UserView `json:"users"`
}

// MessageView is the populated message projection used both for REST
// responses and realtime fanout payloads.
type MessageView struct {
	ID        uint            `json:"id"`
	Content   string          `json:"content"`
	Sender    UserView        `json:"sender"`
	Chat      MessageChatView `json:"chat"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewMessageView assembles the populated view of a message against its chat.
// The chat's Users and the message's Sender must be preloaded.
func NewMessageView(message models.Message, chat models.Chat) MessageView {
	return MessageView{
		ID:      message.ID,
		Content: message.Content,
		Sender:  NewUserView(message.Sender),
		Chat: MessageChatView{
			ID:          chat.ID,
			Name:        chat.Name,
			IsGroupChat: chat.IsGroupChat,
			Users:       NewUserViewSlice(chat.Users),
		},
		CreatedAt: message.CreatedAt,
	}
}

// NewMessageViewSlice converts messages belonging to one chat into views.
func NewMessageViewSlice(messages []models.Message, chat models.Chat) []MessageView {
	out := make([]MessageView, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageView(message, chat))
	}
	return out
}
