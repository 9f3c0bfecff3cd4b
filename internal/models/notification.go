package models

import "time"

// NotificationType enumerates the in-app notification kinds.
type NotificationType string

const (
	NotificationTypeLike    NotificationType = "like"
	NotificationTypeComment NotificationType = "comment"
)

// Notification is a persisted in-app notification (PostgreSQL). Once created only
// IsRead ever changes.
type Notification struct {
	ID          uint             `json:"id" gorm:"primaryKey"`
	Type        NotificationType `json:"type" gorm:"size:30;index"`
	ActorID     uint             `json:"actor_id" gorm:"index"`
	RecipientID uint             `json:"recipient_id" gorm:"index"`
	PostID      string           `json:"post_id,omitempty" gorm:"size:24"`
	CommentID   *uint            `json:"comment_id,omitempty"`
	Message     string           `json:"message"`
	IsRead      bool             `json:"is_read" gorm:"default:false;index"`
	CreatedAt   time.Time        `json:"created_at" gorm:"index"`
}

// EnrichedNotification includes actor info
type EnrichedNotification struct {
	Notification
	Actor UserCompact `json:"actor"`
}
