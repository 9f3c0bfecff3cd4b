package models

import "time"

// Like represents a like on a post. A user can like a post at most once.
type Like struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	PostID    string    `json:"post_id" gorm:"index;uniqueIndex:idx_post_user_like"` // MongoDB ObjectID as hex
	UserID    uint      `json:"user_id" gorm:"index;uniqueIndex:idx_post_user_like"`
	CreatedAt time.Time `json:"created_at"`
}

// LikeState is the result of a like mutation.
type LikeState struct {
	PostID     string `json:"post_id"`
	Liked      bool   `json:"liked"`
	LikesCount int64  `json:"likes_count"`
}
