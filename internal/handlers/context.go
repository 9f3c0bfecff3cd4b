package handlers

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/social/internal/models"
)

// EventPublisher receives committed mutations for fan-out.
type EventPublisher interface {
	Publish(ctx context.Context, event models.MutationEvent)
}

// getUserIDFromContext returns the authenticated user's ID, or 0 when the request
// carries no valid token claims.
func getUserIDFromContext(c echo.Context) uint {
	claims, ok := c.Get("user").(*models.JwtCustomClaims)
	if !ok || claims == nil {
		return 0
	}
	return claims.UserID
}

func requireUserID(c echo.Context) (uint, error) {
	id := getUserIDFromContext(c)
	if id == 0 {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	return id, nil
}

func parseUintParam(c echo.Context, name, what string) (uint, error) {
	return parseID(c.Param(name), what)
}

func parseID(raw, what string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid "+what+" ID")
	}
	return uint(id), nil
}

func pagination(c echo.Context, defaultLimit, maxLimit int) (page, limit int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}
	return page, limit
}

func pageMeta(page, limit int, total int64) models.PageMeta {
	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	return models.PageMeta{
		CurrentPage:     page,
		TotalPages:      totalPages,
		TotalItems:      total,
		ItemsPerPage:    limit,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1,
	}
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	return c.Validate(req)
}
