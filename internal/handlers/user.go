package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/anonto42/nano-midea/social/internal/models"
	"github.com/anonto42/nano-midea/social/internal/repositories"
)

// UserHandler handles HTTP requests related to users
type UserHandler struct {
	userRepository repositories.UserRepository
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userRepo repositories.UserRepository) *UserHandler {
	return &UserHandler{userRepository: userRepo}
}

// RegisterProfileRoutes registers user profile-related routes
func (h *UserHandler) RegisterProfileRoutes(g *echo.Group) {
	g.GET("/profile", h.GetProfile)
	g.PUT("/profile", h.UpdateProfile)
	g.DELETE("/profile", h.DeleteUser)
	g.GET("/users/search", h.SearchUsers)
	g.GET("/users/:id", h.GetUser)
}

func (h *UserHandler) GetUser(c echo.Context) error {
	id, err := parseUintParam(c, "id", "user")
	if err != nil {
		return err
	}
	user, err := h.userRepository.GetUserByID(c.Request().Context(), id)
	if err != nil {
		return userLookupError(err)
	}
	return c.JSON(http.StatusOK, user)
}

// GetProfile retrieves the authenticated user's profile
func (h *UserHandler) GetProfile(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	user, err := h.userRepository.GetUserByID(c.Request().Context(), userID)
	if err != nil {
		return userLookupError(err)
	}
	return c.JSON(http.StatusOK, user)
}

// UpdateProfile updates the authenticated user's profile
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}

	var req models.UpdateUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	user, err := h.userRepository.GetUserByID(ctx, userID)
	if err != nil {
		return userLookupError(err)
	}

	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	if req.Age != 0 {
		user.Age = req.Age
	}
	if req.AvatarURL != "" {
		user.AvatarURL = req.AvatarURL
	}

	if err := h.userRepository.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return echo.NewHTTPError(http.StatusConflict, "Email already in use")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update profile")
	}

	return c.JSON(http.StatusOK, user)
}

// DeleteUser deletes the authenticated user's profile
func (h *UserHandler) DeleteUser(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	if err := h.userRepository.DeleteUser(c.Request().Context(), userID); err != nil {
		return userLookupError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SearchUsers searches for users by a query string (email or name)
func (h *UserHandler) SearchUsers(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Search query 'q' is required")
	}

	users, err := h.userRepository.SearchUsers(c.Request().Context(), query)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to search users")
	}

	compact := make([]models.UserCompact, len(users))
	for i := range users {
		compact[i] = users[i].ToCompact()
	}
	return c.JSON(http.StatusOK, compact)
}

func userLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "User profile not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load user")
}
