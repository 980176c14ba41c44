package dto

import (
	"time"

	"github.com/spec-kit/auth-service/internal/domain"
)

// UserRegisterRequest payload for new users and admins.
type UserRegisterRequest struct {
	FirstName string `json:"firstName"`
	Email     string `json:"emailId"`
	Password  string `json:"password"`
}

// UserLoginRequest payload for login.
type UserLoginRequest struct {
	Email    string `json:"emailId"`
	Password string `json:"password"`
}

// UserResponse is the public principal summary.
type UserResponse struct {
	ID        string      `json:"_id"`
	FirstName string      `json:"firstName"`
	Email     string      `json:"emailId"`
	Role      domain.Role `json:"role"`
}

// AuthResponse carries the token for clients that cannot rely on the cookie.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewUserResponse maps a domain user to its public form.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		FirstName: user.FirstName,
		Email:     user.Email,
		Role:      user.Role,
	}
}
