package dto

import (
	"time"

	"github.com/ravi-anand/chatwave-api/internal/models"
)

// RegisterRequest is the multipart form payload for account creation; the
// avatar file arrives alongside it.
type RegisterRequest struct {
	Name     string `form:"name" validate:"required,min=1,max=255"`
	Email    string `form:"email" validate:"required,email,max=255"`
	Password string `form:"password" validate:"required,min=6,max=128"`
}

// LoginRequest carries login credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ChangePasswordRequest rotates the password after verifying the old one.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=128"`
}

// UserView is the restricted identity projection embedded in every populated
// view. Credential fields are deliberately absent.
type UserView struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// AuthResponse is returned by login and refresh.
type AuthResponse struct {
	User         UserView `json:"user"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
}

// NewUserView projects a user model onto its restricted identity fields.
func NewUserView(user models.User) UserView {
	return UserView{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
	}
}

// NewUserViewSlice converts a slice of user models into views.
func NewUserViewSlice(users []models.User) []UserView {
	out := make([]UserView, 0, len(users))
	for _, user := range users {
		out = append(out, NewUserView(user))
	}
	return out
}

// ProfileView extends UserView with timestamps for the owner's own profile.
type ProfileView struct {
	UserView
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProfileView projects a user model for self-display.
func NewProfileView(user models.User) ProfileView {
	return ProfileView{
		UserView:  NewUserView(user),
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
