package models

import "time"

// Chat is either a direct conversation between exactly two users or a named
// group with at least three members and a single admin.
//
// PairKey is set only for direct chats and holds "<minUserID>:<maxUserID>".
// Its unique index is what makes find-or-create safe under concurrent
// duplicate requests for the same pair: the losing writer hits a duplicate
// key error and re-reads the winner.
type Chat struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Name            string    `gorm:"size:255" json:"name"`
	IsGroupChat     bool      `gorm:"not null;default:false" json:"is_group_chat"`
	PairKey         *string   `gorm:"size:64;uniqueIndex" json:"-"`
	GroupAdminID    *uint     `gorm:"index" json:"group_admin_id,omitempty"`
	GroupAdmin      *User     `gorm:"foreignKey:GroupAdminID" json:"group_admin,omitempty"`
	LatestMessageID *uint     `gorm:"index" json:"latest_message_id,omitempty"`
	LatestMessage   *Message  `gorm:"foreignKey:LatestMessageID" json:"latest_message,omitempty"`
	Users           []User    `gorm:"many2many:chat_users" json:"users"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasMember reports whether the given user belongs to the chat. Membership
// must be preloaded.
func (c Chat) HasMember(userID uint) bool {
	for _, user := range c.Users {
		if user.ID == userID {
			return true
		}
	}
	return false
}
