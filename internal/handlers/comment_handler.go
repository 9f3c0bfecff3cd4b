package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/anonto42/nano-midea/social/internal/models"
	"github.com/anonto42/nano-midea/social/internal/repositories"
	"github.com/anonto42/nano-midea/social/pkg/logger"
)

// CommentHandler handles HTTP requests related to comments
type CommentHandler struct {
	commentRepository repositories.CommentRepository
	postRepository    repositories.PostRepository // To update comment counts in posts
	events            EventPublisher
	log               logger.Logger
}

// NewCommentHandler creates a new CommentHandler
func NewCommentHandler(commentRepo repositories.CommentRepository, postRepo repositories.PostRepository, events EventPublisher, log logger.Logger) *CommentHandler {
	return &CommentHandler{
		commentRepository: commentRepo,
		postRepository:    postRepo,
		events:            events,
		log:               log,
	}
}

// RegisterCommentRoutes registers comment-related routes
func (h *CommentHandler) RegisterCommentRoutes(g *echo.Group) {
	g.POST("/posts/:post_id/comments", h.CreateComment)
	g.GET("/posts/:post_id/comments", h.GetCommentsByPostID)
	g.PUT("/comments/:id", h.UpdateComment)
	g.DELETE("/comments/:id", h.DeleteComment)
}

// CreateComment creates a new comment on a post
func (h *CommentHandler) CreateComment(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}

	var req models.CreateCommentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	post, err := h.postRepository.GetPostByID(ctx, c.Param("post_id"))
	if err != nil {
		return postLookupError(err)
	}
	postID := post.ID.Hex()

	comment := &models.Comment{
		PostID:  postID,
		UserID:  userID,
		Content: req.Content,
	}
	if err := h.commentRepository.CreateComment(ctx, comment); err != nil {
		h.log.Error(ctx, "Failed to create comment", "post_id", postID, "error", err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create comment")
	}

	if err := h.postRepository.AdjustCommentsCount(ctx, postID, 1); err != nil {
		h.log.Warn(ctx, "Failed to increment comments count", "post_id", postID, "error", err.Error())
	}

	h.events.Publish(ctx, models.MutationEvent{
		Kind:        models.CommentAdded,
		ActorID:     userID,
		RecipientID: post.UserID,
		PostID:      postID,
		CommentID:   comment.ID,
		Excerpt:     comment.Content,
	})

	return c.JSON(http.StatusCreated, comment)
}

// GetCommentsByPostID retrieves all comments for a specific post
func (h *CommentHandler) GetCommentsByPostID(c echo.Context) error {
	ctx := c.Request().Context()
	post, err := h.postRepository.GetPostByID(ctx, c.Param("post_id"))
	if err != nil {
		return postLookupError(err)
	}

	comments, err := h.commentRepository.GetCommentsByPostID(ctx, post.ID.Hex())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load comments")
	}

	return c.JSON(http.StatusOK, comments)
}

// UpdateComment updates an existing comment
func (h *CommentHandler) UpdateComment(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	commentID, err := parseUintParam(c, "id", "comment")
	if err != nil {
		return err
	}

	var req models.UpdateCommentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	comment, err := h.commentRepository.GetCommentByID(ctx, commentID)
	if err != nil {
		return commentLookupError(err)
	}

	// Ensure the user updating the comment is the owner
	if comment.UserID != userID {
		return echo.NewHTTPError(http.StatusForbidden, "You are not authorized to update this comment")
	}

	comment.Content = req.Content
	if err := h.commentRepository.UpdateComment(ctx, comment); err != nil {
		h.log.Error(ctx, "Failed to update comment", "comment_id", commentID, "error", err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update comment")
	}

	return c.JSON(http.StatusOK, comment)
}

// DeleteComment deletes a comment
func (h *CommentHandler) DeleteComment(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	commentID, err := parseUintParam(c, "id", "comment")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	comment, err := h.commentRepository.GetCommentByID(ctx, commentID)
	if err != nil {
		return commentLookupError(err)
	}

	// Ensure the user deleting the comment is the owner
	if comment.UserID != userID {
		return echo.NewHTTPError(http.StatusForbidden, "You are not authorized to delete this comment")
	}

	if err := h.commentRepository.DeleteComment(ctx, commentID); err != nil {
		h.log.Error(ctx, "Failed to delete comment", "comment_id", commentID, "error", err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete comment")
	}

	if err := h.postRepository.AdjustCommentsCount(ctx, comment.PostID, -1); err != nil {
		h.log.Warn(ctx, "Failed to decrement comments count", "post_id", comment.PostID, "error", err.Error())
	}

	// The post owner's per-user feed shows the count; a missing post leaves it unknown.
	var ownerID uint
	if post, err := h.postRepository.GetPostByID(ctx, comment.PostID); err == nil {
		ownerID = post.UserID
	}
	h.events.Publish(ctx, models.MutationEvent{
		Kind:        models.CommentDeleted,
		ActorID:     userID,
		RecipientID: ownerID,
		PostID:      comment.PostID,
		CommentID:   comment.ID,
	})

	return c.NoContent(http.StatusNoContent)
}

func commentLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Comment not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load comment")
}
