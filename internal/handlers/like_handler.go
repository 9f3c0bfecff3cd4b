package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/social/internal/models"
	"github.com/anonto42/nano-midea/social/internal/repositories"
	"github.com/anonto42/nano-midea/social/pkg/logger"
)

// LikeHandler handles HTTP requests related to likes
type LikeHandler struct {
	likeRepository repositories.LikeRepository
	postRepository repositories.PostRepository
	events         EventPublisher
	log            logger.Logger
}

// NewLikeHandler creates a new LikeHandler
func NewLikeHandler(likeRepo repositories.LikeRepository, postRepo repositories.PostRepository, events EventPublisher, log logger.Logger) *LikeHandler {
	return &LikeHandler{
		likeRepository: likeRepo,
		postRepository: postRepo,
		events:         events,
		log:            log,
	}
}

// RegisterLikeRoutes registers like-related routes
func (h *LikeHandler) RegisterLikeRoutes(g *echo.Group) {
	g.POST("/posts/:post_id/likes", h.LikePost)
	g.DELETE("/posts/:post_id/likes", h.UnlikePost)
	g.POST("/posts/:post_id/likes/toggle", h.ToggleLike)
	g.GET("/posts/:post_id/likes/count", h.GetLikesCountForPost)
	g.GET("/posts/:post_id/likes/status", h.GetUserLikeStatusForPost)
}

// LikePost handles liking a post
func (h *LikeHandler) LikePost(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	post, err := h.postRepository.GetPostByID(ctx, c.Param("post_id"))
	if err != nil {
		return postLookupError(err)
	}

	like, err := h.like(ctx, post, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrAlreadyLiked) {
			return echo.NewHTTPError(http.StatusConflict, "Post already liked by this user")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to like post")
	}

	return c.JSON(http.StatusCreated, like)
}

// UnlikePost handles unliking a post
func (h *LikeHandler) UnlikePost(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	post, err := h.postRepository.GetPostByID(ctx, c.Param("post_id"))
	if err != nil {
		return postLookupError(err)
	}

	if err := h.unlike(ctx, post, userID); err != nil {
		if errors.Is(err, repositories.ErrLikeNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Like not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to unlike post")
	}

	return c.NoContent(http.StatusNoContent)
}

// ToggleLike flips the user's like on a post and returns the resulting state
func (h *LikeHandler) ToggleLike(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	post, err := h.postRepository.GetPostByID(ctx, c.Param("post_id"))
	if err != nil {
		return postLookupError(err)
	}
	postID := post.ID.Hex()

	liked, err := h.likeRepository.HasUserLikedPost(ctx, postID, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load like status")
	}

	// A concurrent request may have already moved the like to the target state;
	// that is the state the caller asked for.
	if liked {
		err = h.unlike(ctx, post, userID)
		if errors.Is(err, repositories.ErrLikeNotFound) {
			err = nil
		}
	} else {
		_, err = h.like(ctx, post, userID)
		if errors.Is(err, repositories.ErrAlreadyLiked) {
			err = nil
		}
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to toggle like")
	}

	count, err := h.likeRepository.GetLikesCountByPostID(ctx, postID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to count likes")
	}

	return c.JSON(http.StatusOK, models.LikeState{PostID: postID, Liked: !liked, LikesCount: count})
}

// GetLikesCountForPost retrieves the total number of likes for a specific post
func (h *LikeHandler) GetLikesCountForPost(c echo.Context) error {
	ctx := c.Request().Context()
	post, err := h.postRepository.GetPostByID(ctx, c.Param("post_id"))
	if err != nil {
		return postLookupError(err)
	}
	postID := post.ID.Hex()

	count, err := h.likeRepository.GetLikesCountByPostID(ctx, postID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to count likes")
	}

	return c.JSON(http.StatusOK, echo.Map{"post_id": postID, "likes_count": count})
}

// GetUserLikeStatusForPost checks if the authenticated user has liked a specific post
func (h *LikeHandler) GetUserLikeStatusForPost(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	post, err := h.postRepository.GetPostByID(ctx, c.Param("post_id"))
	if err != nil {
		return postLookupError(err)
	}
	postID := post.ID.Hex()

	hasLiked, err := h.likeRepository.HasUserLikedPost(ctx, postID, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load like status")
	}

	return c.JSON(http.StatusOK, echo.Map{"post_id": postID, "user_id": userID, "has_liked": hasLiked})
}

// like commits the like and its counter, then publishes Liked.
func (h *LikeHandler) like(ctx context.Context, post *models.Post, userID uint) (*models.Like, error) {
	postID := post.ID.Hex()
	like := &models.Like{PostID: postID, UserID: userID}
	if err := h.likeRepository.CreateLike(ctx, like); err != nil {
		if !errors.Is(err, repositories.ErrAlreadyLiked) {
			h.log.Error(ctx, "Failed to create like", "post_id", postID, "error", err.Error())
		}
		return nil, err
	}

	if err := h.postRepository.AdjustLikesCount(ctx, postID, 1); err != nil {
		h.log.Warn(ctx, "Failed to increment likes count", "post_id", postID, "error", err.Error())
	}

	h.events.Publish(ctx, models.MutationEvent{
		Kind:        models.Liked,
		ActorID:     userID,
		RecipientID: post.UserID,
		PostID:      postID,
	})
	return like, nil
}

// unlike removes the like and its counter, then publishes Unliked.
func (h *LikeHandler) unlike(ctx context.Context, post *models.Post, userID uint) error {
	postID := post.ID.Hex()
	if err := h.likeRepository.DeleteLike(ctx, postID, userID); err != nil {
		if !errors.Is(err, repositories.ErrLikeNotFound) {
			h.log.Error(ctx, "Failed to delete like", "post_id", postID, "error", err.Error())
		}
		return err
	}

	if err := h.postRepository.AdjustLikesCount(ctx, postID, -1); err != nil {
		h.log.Warn(ctx, "Failed to decrement likes count", "post_id", postID, "error", err.Error())
	}

	h.events.Publish(ctx, models.MutationEvent{
		Kind:        models.Unliked,
		ActorID:     userID,
		RecipientID: post.UserID,
		PostID:      postID,
	})
	return nil
}
