package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post represents a social media post stored in MongoDB
type Post struct {
	ID            primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	UserID        uint               `json:"user_id" bson:"user_id"` // author's user ID
	Content       string             `json:"content" bson:"content"`
	ImageURLs     []string           `json:"image_urls,omitempty" bson:"image_urls,omitempty"`
	VideoURLs     []string           `json:"video_urls,omitempty" bson:"video_urls,omitempty"`
	LikesCount    int                `json:"likes_count" bson:"likes_count"`
	CommentsCount int                `json:"comments_count" bson:"comments_count"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
}

// CreatePostRequest defines the request body for creating a new post
type CreatePostRequest struct {
	Content   string   `json:"content" validate:"required,min=1,max=280"`
	ImageURLs []string `json:"image_urls,omitempty" validate:"omitempty,dive,url"`
	VideoURLs []string `json:"video_urls,omitempty" validate:"omitempty,dive,url"`
}

// UpdatePostRequest defines the request body for updating an existing post
type UpdatePostRequest struct {
	Content   string   `json:"content,omitempty" validate:"omitempty,min=1,max=280"`
	ImageURLs []string `json:"image_urls,omitempty" validate:"omitempty,dive,url"`
	VideoURLs []string `json:"video_urls,omitempty" validate:"omitempty,dive,url"`
}

// EnrichedPost is a post with its author's public profile. This is the shape that
// feed, explore and single-post read-views cache, so it carries nothing viewer-specific.
type EnrichedPost struct {
	Post
	Author UserCompact `json:"author"`
}

// PageMeta describes one page of a paginated listing.
type PageMeta struct {
	CurrentPage     int   `json:"currentPage"`
	TotalPages      int   `json:"totalPages"`
	TotalItems      int64 `json:"totalItems"`
	ItemsPerPage    int   `json:"itemsPerPage"`
	HasNextPage     bool  `json:"hasNextPage"`
	HasPreviousPage bool  `json:"hasPreviousPage"`
}

// PostPage is the cached read-view for feed, explore and per-user listings.
type PostPage struct {
	Posts []EnrichedPost `json:"posts"`
	Meta  PageMeta       `json:"meta"`
}
