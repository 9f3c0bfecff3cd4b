package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

type User struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	Name        string         `json:"name"`
	Email       string         `json:"email" gorm:"uniqueIndex"`
	Age         int            `json:"age"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
	Password    string         `json:"-"`                                         // bcrypt hash
	FirebaseUID *string        `json:"firebase_uid,omitempty" gorm:"uniqueIndex"` // nil for local accounts
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// UserCompact is the public projection embedded in posts and notifications.
type UserCompact struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func (u *User) ToCompact() UserCompact {
	return UserCompact{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL}
}

// DisplayName is what push payloads and notification messages show for the user.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return "Someone"
}

type CreateUserRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=50"`
	Email       string `json:"email" validate:"required,email"`
	Age         int    `json:"age" validate:"required,min=0,max=150"`
	FirebaseUID string `json:"firebase_uid" validate:"required"` // provided by the client after Firebase Auth
}

type CreateLocalUserRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Age      int    `json:"age" validate:"required,min=0,max=150"`
	Password string `json:"password" validate:"required,min=8"`
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UpdateUserRequest struct {
	Name      string `json:"name,omitempty" validate:"omitempty,min=2,max=50"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Age       int    `json:"age,omitempty" validate:"min=0,max=150"`
	AvatarURL string `json:"avatar_url,omitempty" validate:"omitempty,url"`
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}
