package models

import "time"

// Message is a single immutable chat message. Content is sanitized and
// trimmed before persistence and is never empty.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SenderID  uint      `gorm:"index;not null" json:"sender_id"`
	Sender    User      `gorm:"foreignKey:SenderID" json:"sender"`
	ChatID    uint      `gorm:"index;not null" json:"chat_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
