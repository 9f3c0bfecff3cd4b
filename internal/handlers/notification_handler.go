package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/anonto42/nano-midea/social/internal/models"
	"github.com/anonto42/nano-midea/social/internal/repositories"
	"github.com/anonto42/nano-midea/social/pkg/logger"
)

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	notificationRepository repositories.NotificationRepository
	userRepository         repositories.UserRepository
	log                    logger.Logger
	now                    func() time.Time
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notifRepo repositories.NotificationRepository, userRepo repositories.UserRepository, log logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		notificationRepository: notifRepo,
		userRepository:         userRepo,
		log:                    log,
		now:                    time.Now,
	}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/grouped", h.GetGroupedNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.PUT("/notifications/:id/read", h.MarkAsRead)
	g.PUT("/notifications/read-all", h.MarkAllAsRead)
}

// enrichNotifications attaches actor profiles. A failed lookup degrades to bare actor IDs
// rather than failing the listing.
func (h *NotificationHandler) enrichNotifications(ctx context.Context, notifications []models.Notification) []models.EnrichedNotification {
	ids := make([]uint, 0, len(notifications))
	for _, n := range notifications {
		ids = append(ids, n.ActorID)
	}

	actors, err := h.userRepository.GetUsersByIDs(ctx, ids)
	if err != nil {
		h.log.Warn(ctx, "Failed to load notification actors", "error", err.Error())
	}

	enriched := make([]models.EnrichedNotification, len(notifications))
	for i, n := range notifications {
		enriched[i] = models.EnrichedNotification{Notification: n, Actor: models.UserCompact{ID: n.ActorID}}
		if actor, ok := actors[n.ActorID]; ok {
			enriched[i].Actor = actor.ToCompact()
		}
	}
	return enriched
}

// GetNotifications returns paginated notifications
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	page, limit := pagination(c, 20, 50)
	ctx := c.Request().Context()

	notifications, total, err := h.notificationRepository.GetByRecipientID(ctx, userID, page, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load notifications")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": h.enrichNotifications(ctx, notifications),
		},
		"meta": pageMeta(page, limit, total),
	})
}

// GetGroupedNotifications returns notifications grouped by time period
func (h *NotificationHandler) GetGroupedNotifications(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	grouped, err := h.notificationRepository.GetGrouped(ctx, userID, h.now())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load notifications")
	}

	unreadCount, err := h.notificationRepository.GetUnreadCount(ctx, userID)
	if err != nil {
		h.log.Warn(ctx, "Failed to count unread notifications", "error", err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": echo.Map{
				"today":     h.enrichNotifications(ctx, grouped.Today),
				"yesterday": h.enrichNotifications(ctx, grouped.Yesterday),
				"thisWeek":  h.enrichNotifications(ctx, grouped.ThisWeek),
				"older":     h.enrichNotifications(ctx, grouped.Older),
			},
			"unreadCount": unreadCount,
		},
	})
}

// GetUnreadCount returns the unread notification count
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}

	count, err := h.notificationRepository.GetUnreadCount(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to count notifications")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"count": count}})
}

// MarkAsRead marks one of the caller's notifications as read
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	notifID, err := parseUintParam(c, "id", "notification")
	if err != nil {
		return err
	}

	if err := h.notificationRepository.MarkAsRead(c.Request().Context(), userID, notifID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update notification")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"success": true}})
}

// MarkAllAsRead marks all notifications as read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}

	if err := h.notificationRepository.MarkAllAsRead(c.Request().Context(), userID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update notifications")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"success": true}})
}
