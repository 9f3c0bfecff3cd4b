// Package bootstrap builds the process-scoped object graph shared by the API server and
// the operator CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anonto42/nano-midea/social/internal/cache"
	"github.com/anonto42/nano-midea/social/internal/fanout"
	"github.com/anonto42/nano-midea/social/internal/handlers"
	"github.com/anonto42/nano-midea/social/internal/push"
	"github.com/anonto42/nano-midea/social/internal/repositories"
	"github.com/anonto42/nano-midea/social/pkg/config"
	"github.com/anonto42/nano-midea/social/pkg/firebase"
	"github.com/anonto42/nano-midea/social/pkg/logger"
)

// Container owns every long-lived dependency of the API process.
type Container struct {
	Config *config.Config
	Log    logger.Logger
	DB     *config.DB

	Users         repositories.UserRepository
	Posts         repositories.PostRepository
	Likes         repositories.LikeRepository
	Comments      repositories.CommentRepository
	Notifications repositories.NotificationRepository
	Subscriptions repositories.PushSubscriptionRepository

	Cache       *cache.Layer
	Invalidator *cache.Invalidator
	Dispatcher  *push.Dispatcher
	Coordinator *fanout.Coordinator
	Views       *handlers.PostViews

	// FirebaseAuth is nil when no credentials are configured.
	FirebaseAuth firebase.IDTokenVerifier
	// VAPIDPublicKey is empty when push is not configured.
	VAPIDPublicKey string
}

// NewContainer connects to the stores and wires the fan-out pipeline.
func NewContainer(ctx context.Context, cfg *config.Config, log logger.Logger) (*Container, error) {
	db, err := config.InitDB(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	if err := repositories.Migrate(db.Postgres); err != nil {
		db.CloseDB()
		return nil, fmt.Errorf("failed to migrate PostgreSQL schema: %w", err)
	}
	log.Info(ctx, "PostgreSQL auto-migrations completed")

	posts := repositories.NewMongoPostRepository(db.Mongo.Database(cfg.Mongo.Database))
	if err := posts.EnsureIndexes(ctx); err != nil {
		log.Warn(ctx, "Failed to ensure post indexes", "error", err.Error())
	}

	c := &Container{
		Config:        cfg,
		Log:           log,
		DB:            db,
		Users:         repositories.NewPostgresUserRepository(db.Postgres),
		Posts:         posts,
		Likes:         repositories.NewPostgresLikeRepository(db.Postgres),
		Comments:      repositories.NewPostgresCommentRepository(db.Postgres),
		Notifications: repositories.NewPostgresNotificationRepository(db.Postgres),
		Subscriptions: repositories.NewPostgresPushSubscriptionRepository(db.Postgres),
	}

	c.Cache = NewCacheLayer(cfg, db.Redis, log)
	c.Invalidator = cache.NewInvalidator(c.Cache, log)

	transport := NewPushTransport(cfg)
	if transport != nil {
		c.VAPIDPublicKey = transport.PublicKey()
		log.Info(ctx, "Web Push enabled", "subscriber", cfg.Push.Subscriber)
	} else {
		log.Warn(ctx, "VAPID keys not configured, push notifications are disabled")
	}
	c.Dispatcher = NewDispatcher(cfg, c.Subscriptions, transport, log)

	c.Coordinator = fanout.NewCoordinator(fanout.Deps{
		Notifications: c.Notifications,
		Users:         c.Users,
		Dispatcher:    c.Dispatcher,
		Invalidator:   c.Invalidator,
		Payloads:      Payloads(cfg),
		StoreTimeout:  seconds(cfg.Push.StoreTimeoutSeconds),
	}, log)

	c.Views = handlers.NewPostViews(c.Posts, c.Users, c.Cache, TTLs(cfg))

	app, err := firebase.InitFirebase(ctx, cfg.Firebase.CredentialsPath)
	switch {
	case err == nil:
		c.FirebaseAuth = app.AuthClient
		log.Info(ctx, "Firebase authentication enabled")
	case errors.Is(err, firebase.ErrNotConfigured):
		log.Info(ctx, "Firebase credentials not configured, firebase-login is disabled")
	default:
		log.Warn(ctx, "Failed to initialize Firebase, firebase-login is disabled", "error", err.Error())
	}

	return c, nil
}

// Close drains in-flight fan-out within ctx, then releases the cache and the stores.
func (c *Container) Close(ctx context.Context) {
	if err := c.Coordinator.Wait(ctx); err != nil {
		c.Log.Warn(ctx, "Fan-out did not drain before shutdown", "error", err.Error())
	}
	if err := c.Cache.Close(); err != nil {
		c.Log.Warn(ctx, "Failed to close cache", "error", err.Error())
	}
	c.DB.CloseDB()
}

// NewCacheLayer picks the backend named by cache.backend. "redis" without a client and
// "none" both yield a bypassing layer.
func NewCacheLayer(cfg *config.Config, client *redis.Client, log logger.Logger) *cache.Layer {
	var backend cache.Backend
	switch cfg.Cache.Backend {
	case "redis":
		if client != nil {
			backend = cache.NewRedisBackend(client)
		}
	case "memory":
		backend = cache.NewMemoryBackend(time.Minute)
	}

	return cache.NewLayer(backend, cache.Options{
		OpTimeout:       time.Duration(cfg.Cache.OpTimeoutMs) * time.Millisecond,
		BreakerFailures: uint32(max(cfg.Cache.BreakerFailures, 0)),
		BreakerOpen:     seconds(cfg.Cache.BreakerOpenSeconds),
	}, log)
}

// TTLs reads the per-namespace TTLs, keeping the defaults for unset values.
func TTLs(cfg *config.Config) cache.TTLs {
	ttls := cache.DefaultTTLs()
	if d := seconds(cfg.Cache.FeedTTLSeconds); d > 0 {
		ttls.Feed = d
	}
	if d := seconds(cfg.Cache.ExploreTTLSeconds); d > 0 {
		ttls.Explore = d
	}
	if d := seconds(cfg.Cache.PostTTLSeconds); d > 0 {
		ttls.Post = d
	}
	if d := seconds(cfg.Cache.UserFeedTTLSeconds); d > 0 {
		ttls.UserFeed = d
	}
	return ttls
}

// NewPushTransport returns nil unless both VAPID keys are configured.
func NewPushTransport(cfg *config.Config) *push.WebPushTransport {
	if !cfg.PushEnabled() {
		return nil
	}
	return push.NewWebPushTransport(push.VAPID{
		PublicKey:  cfg.Push.VAPIDPublicKey,
		PrivateKey: cfg.Push.VAPIDPrivateKey,
		Subscriber: cfg.Push.Subscriber,
	}, seconds(cfg.Push.TTLSeconds), &http.Client{Timeout: seconds(cfg.Push.TimeoutSeconds)})
}

// NewDispatcher builds the dispatcher; a nil transport leaves it disabled.
func NewDispatcher(cfg *config.Config, registry push.Registry, transport *push.WebPushTransport, log logger.Logger) *push.Dispatcher {
	opts := push.Options{
		DeliveryTimeout: seconds(cfg.Push.TimeoutSeconds),
		StoreTimeout:    seconds(cfg.Push.StoreTimeoutSeconds),
	}
	if transport == nil {
		return push.NewDispatcher(registry, nil, opts, log)
	}
	return push.NewDispatcher(registry, transport, opts, log)
}

func Payloads(cfg *config.Config) push.Payloads {
	return push.Payloads{Icon: cfg.Push.Icon, Badge: cfg.Push.Badge}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
