package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/anonto42/nano-midea/social/internal/models"
	"github.com/anonto42/nano-midea/social/internal/push"
	"github.com/anonto42/nano-midea/social/internal/repositories"
	"github.com/anonto42/nano-midea/social/pkg/logger"
)

// PushHandler manages device registrations for Web Push
type PushHandler struct {
	subscriptions  repositories.PushSubscriptionRepository
	vapidPublicKey string
	log            logger.Logger
}

// NewPushHandler creates a new PushHandler. An empty public key means push is not
// configured and the key endpoint answers 503.
func NewPushHandler(subs repositories.PushSubscriptionRepository, vapidPublicKey string, log logger.Logger) *PushHandler {
	return &PushHandler{subscriptions: subs, vapidPublicKey: vapidPublicKey, log: log}
}

// RegisterPublicPushRoutes registers routes that need no token
func (h *PushHandler) RegisterPublicPushRoutes(g *echo.Group) {
	g.GET("/push/vapid-public-key", h.GetVAPIDPublicKey)
}

// RegisterPushRoutes registers subscription management routes
func (h *PushHandler) RegisterPushRoutes(g *echo.Group) {
	g.GET("/push/subscriptions", h.ListSubscriptions)
	g.POST("/push/subscriptions", h.Subscribe)
	g.DELETE("/push/subscriptions", h.Unsubscribe)
}

// GetVAPIDPublicKey returns the application server key browsers subscribe with
func (h *PushHandler) GetVAPIDPublicKey(c echo.Context) error {
	if h.vapidPublicKey == "" {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Push notifications are not configured")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"publicKey": h.vapidPublicKey}})
}

// ListSubscriptions returns the caller's registered devices
func (h *PushHandler) ListSubscriptions(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}

	subs, err := h.subscriptions.ListFor(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load subscriptions")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"subscriptions": subs}})
}

// Subscribe registers the browser's subscription for the caller. Registering an endpoint
// that belongs to another account moves it to the caller.
func (h *PushHandler) Subscribe(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}

	var req models.SubscribePushRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	res, err := h.subscriptions.Upsert(ctx, userID, req.Endpoint, req.Keys)
	if err != nil {
		h.log.Error(ctx, "Failed to register push subscription", "endpoint", push.ShortEndpoint(req.Endpoint), "error", err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to register subscription")
	}
	if res.Reassigned() {
		h.log.Info(ctx, "Push subscription reassigned",
			"subscription_id", res.ID, "previous_user_id", res.PreviousUserID, "endpoint", push.ShortEndpoint(req.Endpoint))
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, echo.Map{"success": true, "data": echo.Map{"id": res.ID}})
}

// Unsubscribe removes one of the caller's endpoints
func (h *PushHandler) Unsubscribe(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}

	var req models.UnsubscribePushRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.subscriptions.RemoveByEndpoint(c.Request().Context(), userID, req.Endpoint); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Subscription not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to remove subscription")
	}
	return c.NoContent(http.StatusNoContent)
}
