package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/social/internal/models"
)

const headerCache = "X-Cache"

// FeedHandler serves the cached post listings.
type FeedHandler struct {
	views *PostViews
}

// NewFeedHandler creates a new FeedHandler
func NewFeedHandler(views *PostViews) *FeedHandler {
	return &FeedHandler{views: views}
}

// RegisterFeedRoutes registers feed-related routes
func (h *FeedHandler) RegisterFeedRoutes(g *echo.Group) {
	g.GET("/feed", h.GetFeed)
	g.GET("/explore", h.GetExplore)
	g.GET("/users/:id/posts", h.GetUserPosts)
}

// GetFeed returns every post, newest first
func (h *FeedHandler) GetFeed(c echo.Context) error {
	page, limit := pagination(c, 10, 50)
	view, hit, err := h.views.Feed(c.Request().Context(), page, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load feed")
	}
	return writePostPage(c, view, hit)
}

// GetExplore returns the most liked posts
func (h *FeedHandler) GetExplore(c echo.Context) error {
	page, limit := pagination(c, 20, 50)
	view, hit, err := h.views.Explore(c.Request().Context(), page, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load explore")
	}
	return writePostPage(c, view, hit)
}

// GetUserPosts returns one author's posts, newest first
func (h *FeedHandler) GetUserPosts(c echo.Context) error {
	authorID, err := parseUintParam(c, "id", "user")
	if err != nil {
		return err
	}
	page, limit := pagination(c, 10, 50)
	view, hit, err := h.views.UserFeed(c.Request().Context(), authorID, page, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load user posts")
	}
	return writePostPage(c, view, hit)
}

func writePostPage(c echo.Context, view *models.PostPage, hit bool) error {
	setCacheHeader(c, hit)
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"posts": view.Posts,
		},
		"meta": view.Meta,
	})
}

func setCacheHeader(c echo.Context, hit bool) {
	if hit {
		c.Response().Header().Set(headerCache, "HIT")
		return
	}
	c.Response().Header().Set(headerCache, "MISS")
}
