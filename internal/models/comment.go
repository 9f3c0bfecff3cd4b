package models

import "gorm.io/gorm"

// Comment represents a comment on a post
type Comment struct {
	gorm.Model
	PostID  string `json:"post_id" gorm:"index"` // MongoDB ObjectID as hex
	UserID  uint   `json:"user_id" gorm:"index"`
	Content string `json:"content" validate:"required,min=1,max=500"`
}

// CreateCommentRequest defines the request body for creating a new comment.
// The post comes from the route.
type CreateCommentRequest struct {
	Content string `json:"content" validate:"required,min=1,max=500"`
}

// UpdateCommentRequest defines the request body for updating an existing comment
type UpdateCommentRequest struct {
	Content string `json:"content" validate:"required,min=1,max=500"`
}
