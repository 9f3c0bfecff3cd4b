// Package fanout runs the side effects of a committed mutation: the in-app notification
// record, the push to the recipient's devices and the cache invalidation. Each runs as
// a detached task so the request that triggered it never waits on or fails because of
// them.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/anonto42/nano-midea/social/internal/metrics"
	"github.com/anonto42/nano-midea/social/internal/models"
	"github.com/anonto42/nano-midea/social/internal/push"
	"github.com/anonto42/nano-midea/social/pkg/logger"
	"github.com/anonto42/nano-midea/social/pkg/safego"
)

type NotificationStore interface {
	CreateNotification(ctx context.Context, notification *models.Notification) error
}

type UserDirectory interface {
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
}

type PushDispatcher interface {
	Dispatch(ctx context.Context, recipientID uint, payload models.NotificationPayload) push.Report
}

type CacheInvalidator interface {
	InvalidateForMutation(ctx context.Context, event models.MutationEvent)
}

// Deps are the collaborators a Coordinator sequences.
type Deps struct {
	Notifications NotificationStore
	Users         UserDirectory
	Dispatcher    PushDispatcher
	Invalidator   CacheInvalidator
	Payloads      push.Payloads
	// StoreTimeout bounds the notification insert and the actor lookup.
	StoreTimeout time.Duration
}

// Coordinator is the entry point every mutation handler calls after its write commits.
type Coordinator struct {
	deps Deps
	log  logger.Logger
	wg   sync.WaitGroup
}

func NewCoordinator(deps Deps, log logger.Logger) *Coordinator {
	if deps.StoreTimeout <= 0 {
		deps.StoreTimeout = 5 * time.Second
	}
	return &Coordinator{deps: deps, log: log}
}

// Publish launches the fan-out for event and returns immediately. Likes and comments on
// someone else's post get a notification record followed by a push; every event
// invalidates caches. The tasks keep the values of ctx (request id, user id) for
// logging but not its cancellation.
func (c *Coordinator) Publish(ctx context.Context, event models.MutationEvent) {
	metrics.ObserveFanoutEvent(string(event.Kind))
	bg := context.WithoutCancel(ctx)

	if event.Notifies() {
		c.spawn(bg, "notify", func(ctx context.Context) { c.notify(ctx, event) })
	}
	c.spawn(bg, "invalidate", func(ctx context.Context) {
		c.deps.Invalidator.InvalidateForMutation(ctx, event)
	})
}

// Wait blocks until every launched task has finished or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) spawn(ctx context.Context, task string, fn func(context.Context)) {
	c.wg.Add(1)
	metrics.FanoutInflightGauge.Inc()
	go func() {
		defer c.wg.Done()
		defer metrics.FanoutInflightGauge.Dec()
		if !safego.Run(ctx, c.log, "fanout."+task, func() { fn(ctx) }) {
			metrics.ObserveFanoutFailure(task)
		}
	}()
}

// notify writes the notification record, then pushes. A failed insert does not stop
// the push.
func (c *Coordinator) notify(ctx context.Context, event models.MutationEvent) {
	payload := c.payloadFor(ctx, event)

	record := &models.Notification{
		Type:        notificationType(event.Kind),
		ActorID:     event.ActorID,
		RecipientID: event.RecipientID,
		PostID:      event.PostID,
		Message:     payload.Body,
	}
	if event.CommentID != 0 {
		commentID := event.CommentID
		record.CommentID = &commentID
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.deps.StoreTimeout)
	err := c.deps.Notifications.CreateNotification(storeCtx, record)
	cancel()
	if err != nil {
		metrics.ObserveFanoutFailure("notify_record")
		c.log.Warn(ctx, "Failed to create notification record",
			"event", event.String(), "error", err.Error())
	}

	c.deps.Dispatcher.Dispatch(ctx, event.RecipientID, payload)
}

func (c *Coordinator) payloadFor(ctx context.Context, event models.MutationEvent) models.NotificationPayload {
	name := c.actorName(ctx, event.ActorID)
	if event.Kind == models.CommentAdded {
		return c.deps.Payloads.CommentPayload(name, event.PostID, event.Excerpt)
	}
	return c.deps.Payloads.LikePayload(name, event.PostID)
}

func (c *Coordinator) actorName(ctx context.Context, actorID uint) string {
	storeCtx, cancel := context.WithTimeout(ctx, c.deps.StoreTimeout)
	defer cancel()

	actor, err := c.deps.Users.GetUserByID(storeCtx, actorID)
	if err != nil {
		c.log.Debug(ctx, "Could not resolve actor name", "actor_id", actorID, "error", err.Error())
		return (&models.User{}).DisplayName()
	}
	return actor.DisplayName()
}

func notificationType(kind models.MutationKind) models.NotificationType {
	if kind == models.CommentAdded {
		return models.NotificationTypeComment
	}
	return models.NotificationTypeLike
}
