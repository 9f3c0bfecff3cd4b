package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/anonto42/nano-midea/social/internal/bootstrap"
	"github.com/anonto42/nano-midea/social/internal/handlers"
	"github.com/anonto42/nano-midea/social/internal/middleware"
	"github.com/anonto42/nano-midea/social/pkg/logger"
	"github.com/anonto42/nano-midea/social/pkg/validators"
)

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo, log logger.Logger) {
	e.Validator = validators.NewValidator()
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(log))
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, c *bootstrap.Container) {
	log := c.Log

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "Hello, World!"})
	})

	// --- Unprotected routes ---
	authGroup := e.Group("/api/v1/auth")
	authHandler := handlers.NewAuthHandler(c.Users, c.FirebaseAuth, c.Config.JWTSecret(), c.Config.TokenTTL(), log)
	authHandler.RegisterAuthRoutes(authGroup)

	public := e.Group("/api/v1")
	pushHandler := handlers.NewPushHandler(c.Subscriptions, c.VAPIDPublicKey, log)
	pushHandler.RegisterPublicPushRoutes(public)

	// --- Protected routes (require JWT authentication) ---
	api := e.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware(c.Config.JWTSecret()))

	userHandler := handlers.NewUserHandler(c.Users)
	userHandler.RegisterProfileRoutes(api)

	postHandler := handlers.NewPostHandler(c.Posts, c.Likes, c.Comments, c.Views, c.Coordinator, log)
	postHandler.RegisterPostRoutes(api)

	feedHandler := handlers.NewFeedHandler(c.Views)
	feedHandler.RegisterFeedRoutes(api)

	commentHandler := handlers.NewCommentHandler(c.Comments, c.Posts, c.Coordinator, log)
	commentHandler.RegisterCommentRoutes(api)

	likeHandler := handlers.NewLikeHandler(c.Likes, c.Posts, c.Coordinator, log)
	likeHandler.RegisterLikeRoutes(api)

	notificationHandler := handlers.NewNotificationHandler(c.Notifications, c.Users, log)
	notificationHandler.RegisterNotificationRoutes(api)

	pushHandler.RegisterPushRoutes(api)
}
