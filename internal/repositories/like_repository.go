package repositories

import (
	"context"
	"errors"

	"github.com/anonto42/nano-midea/social/internal/models"
	"gorm.io/gorm"
)

// ErrLikeNotFound is returned when removing a like that does not exist.
var ErrLikeNotFound = errors.New("like not found")

// ErrAlreadyLiked is returned when the (post, user) pair already has a like.
var ErrAlreadyLiked = errors.New("post already liked by this user")

// LikeRepository defines the interface for like data operations
type LikeRepository interface {
	CreateLike(ctx context.Context, like *models.Like) error
	DeleteLike(ctx context.Context, postID string, userID uint) error
	GetLikesCountByPostID(ctx context.Context, postID string) (int64, error)
	HasUserLikedPost(ctx context.Context, postID string, userID uint) (bool, error)
	DeleteLikesByPostID(ctx context.Context, postID string) error
}

// PostgresLikeRepository implements LikeRepository for PostgreSQL
type PostgresLikeRepository struct {
	db *gorm.DB
}

// NewPostgresLikeRepository creates a new PostgresLikeRepository
func NewPostgresLikeRepository(db *gorm.DB) *PostgresLikeRepository {
	return &PostgresLikeRepository{db: db}
}

// CreateLike inserts the like. The unique (post_id, user_id) index makes concurrent
// double-likes fail with ErrAlreadyLiked instead of creating two rows.
func (r *PostgresLikeRepository) CreateLike(ctx context.Context, like *models.Like) error {
	err := r.db.WithContext(ctx).Create(like).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyLiked
	}
	return err
}

func (r *PostgresLikeRepository) DeleteLike(ctx context.Context, postID string, userID uint) error {
	res := r.db.WithContext(ctx).Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.Like{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLikeNotFound
	}
	return nil
}

func (r *PostgresLikeRepository) GetLikesCountByPostID(ctx context.Context, postID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Like{}).Where("post_id = ?", postID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PostgresLikeRepository) HasUserLikedPost(ctx context.Context, postID string, userID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Like{}).Where("post_id = ? AND user_id = ?", postID, userID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteLikesByPostID removes every like of a deleted post.
func (r *PostgresLikeRepository) DeleteLikesByPostID(ctx context.Context, postID string) error {
	return r.db.WithContext(ctx).Where("post_id = ?", postID).Delete(&models.Like{}).Error
}
