package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/social/internal/models"
	"github.com/anonto42/nano-midea/social/internal/repositories"
	"github.com/anonto42/nano-midea/social/pkg/logger"
)

// PostHandler handles HTTP requests related to posts
type PostHandler struct {
	postRepository    repositories.PostRepository
	likeRepository    repositories.LikeRepository
	commentRepository repositories.CommentRepository
	views             *PostViews
	events            EventPublisher
	log               logger.Logger
}

// NewPostHandler creates a new PostHandler
func NewPostHandler(
	postRepo repositories.PostRepository,
	likeRepo repositories.LikeRepository,
	commentRepo repositories.CommentRepository,
	views *PostViews,
	events EventPublisher,
	log logger.Logger,
) *PostHandler {
	return &PostHandler{
		postRepository:    postRepo,
		likeRepository:    likeRepo,
		commentRepository: commentRepo,
		views:             views,
		events:            events,
		log:               log,
	}
}

// RegisterPostRoutes registers post-related routes
func (h *PostHandler) RegisterPostRoutes(g *echo.Group) {
	g.POST("/posts", h.CreatePost)
	g.GET("/posts/:id", h.GetPost)
	g.GET("/posts", h.GetPosts)
	g.PUT("/posts/:id", h.UpdatePost)
	g.DELETE("/posts/:id", h.DeletePost)
}

// CreatePost creates a new post
func (h *PostHandler) CreatePost(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}

	var req models.CreatePostRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	post := &models.Post{
		UserID:    userID,
		Content:   req.Content,
		ImageURLs: req.ImageURLs,
		VideoURLs: req.VideoURLs,
	}

	ctx := c.Request().Context()
	if err := h.postRepository.CreatePost(ctx, post); err != nil {
		h.log.Error(ctx, "Failed to create post", "error", err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create post")
	}

	h.events.Publish(ctx, models.MutationEvent{Kind: models.PostCreated, ActorID: userID, PostID: post.ID.Hex()})

	return c.JSON(http.StatusCreated, post)
}

// GetPost retrieves a post by ID
func (h *PostHandler) GetPost(c echo.Context) error {
	post, hit, err := h.views.Post(c.Request().Context(), c.Param("id"))
	if err != nil {
		return postLookupError(err)
	}
	setCacheHeader(c, hit)
	return c.JSON(http.StatusOK, post)
}

// GetPosts lists posts, optionally for one author with ?user_id=
func (h *PostHandler) GetPosts(c echo.Context) error {
	page, limit := pagination(c, 10, 50)
	ctx := c.Request().Context()

	var (
		view *models.PostPage
		hit  bool
		err  error
	)
	if raw := c.QueryParam("user_id"); raw != "" {
		authorID, perr := parseID(raw, "user")
		if perr != nil {
			return perr
		}
		view, hit, err = h.views.UserFeed(ctx, authorID, page, limit)
	} else {
		view, hit, err = h.views.Feed(ctx, page, limit)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load posts")
	}
	return writePostPage(c, view, hit)
}

// UpdatePost updates an existing post
func (h *PostHandler) UpdatePost(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	postID := c.Param("id")

	var req models.UpdatePostRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	existingPost, err := h.postRepository.GetPostByID(ctx, postID)
	if err != nil {
		return postLookupError(err)
	}
	if existingPost.UserID != userID {
		return echo.NewHTTPError(http.StatusForbidden, "You are not authorized to update this post")
	}

	if req.Content != "" {
		existingPost.Content = req.Content
	}
	if req.ImageURLs != nil {
		existingPost.ImageURLs = req.ImageURLs
	}
	if req.VideoURLs != nil {
		existingPost.VideoURLs = req.VideoURLs
	}

	postID = existingPost.ID.Hex()
	if err := h.postRepository.UpdatePost(ctx, postID, existingPost); err != nil {
		if errors.Is(err, repositories.ErrPostNotFound) {
			return postLookupError(err)
		}
		h.log.Error(ctx, "Failed to update post", "post_id", postID, "error", err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update post")
	}

	h.events.Publish(ctx, models.MutationEvent{Kind: models.PostUpdated, ActorID: userID, PostID: postID})

	return c.JSON(http.StatusOK, existingPost)
}

// DeletePost deletes a post together with its likes and comments
func (h *PostHandler) DeletePost(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	postID := c.Param("id")

	ctx := c.Request().Context()
	existingPost, err := h.postRepository.GetPostByID(ctx, postID)
	if err != nil {
		return postLookupError(err)
	}
	if existingPost.UserID != userID {
		return echo.NewHTTPError(http.StatusForbidden, "You are not authorized to delete this post")
	}
	postID = existingPost.ID.Hex()

	if err := h.postRepository.DeletePost(ctx, postID); err != nil {
		if errors.Is(err, repositories.ErrPostNotFound) {
			return postLookupError(err)
		}
		h.log.Error(ctx, "Failed to delete post", "post_id", postID, "error", err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete post")
	}

	// Orphaned likes and comments are unreachable once the post is gone.
	if err := h.likeRepository.DeleteLikesByPostID(ctx, postID); err != nil {
		h.log.Warn(ctx, "Failed to delete likes of deleted post", "post_id", postID, "error", err.Error())
	}
	if err := h.commentRepository.DeleteCommentsByPostID(ctx, postID); err != nil {
		h.log.Warn(ctx, "Failed to delete comments of deleted post", "post_id", postID, "error", err.Error())
	}

	h.events.Publish(ctx, models.MutationEvent{Kind: models.PostDeleted, ActorID: userID, PostID: postID})

	return c.NoContent(http.StatusNoContent)
}

func postLookupError(err error) error {
	if errors.Is(err, repositories.ErrPostNotFound) || errors.Is(err, repositories.ErrInvalidPostID) {
		return echo.NewHTTPError(http.StatusNotFound, "Post not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load post")
}
