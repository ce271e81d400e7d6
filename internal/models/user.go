package models

import "time"

// User is an account that can participate in chats. PasswordHash and
// RefreshToken are credentials and must never be serialized into API
// responses; views project the restricted identity fields only.
type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	Email          string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash   string    `gorm:"size:255;not null" json:"-"`
	AvatarURL      string    `gorm:"size:512" json:"avatar_url"`
	AvatarPublicID string    `gorm:"size:255" json:"-"`
	RefreshToken   *string   `gorm:"size:512" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
