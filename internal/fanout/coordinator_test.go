package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/anonto42/nano-midea/social/internal/cache"
	"github.com/anonto42/nano-midea/social/internal/models"
	"github.com/anonto42/nano-midea/social/internal/push"
	"github.com/anonto42/nano-midea/social/internal/repositories"
	"github.com/anonto42/nano-midea/social/internal/testutil"
	"github.com/anonto42/nano-midea/social/pkg/logger"
)

// endpointTransport answers per endpoint and records attempts.
type endpointTransport struct {
	mu       sync.Mutex
	results  map[string]error
	attempts []string
}

func (e *endpointTransport) Send(_ context.Context, sub models.PushSubscription, _ []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts = append(e.attempts, sub.Endpoint)
	return e.results[sub.Endpoint]
}

// recordingDispatcher stands in for the push dispatcher.
type recordingDispatcher struct {
	mu       sync.Mutex
	calls    []models.NotificationPayload
	blockFor chan struct{}
}

func (r *recordingDispatcher) Dispatch(_ context.Context, _ uint, payload models.NotificationPayload) push.Report {
	if r.blockFor != nil {
		<-r.blockFor
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, payload)
	return push.Report{Delivered: 1}
}

func (r *recordingDispatcher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type failingStore struct{}

func (failingStore) CreateNotification(context.Context, *models.Notification) error {
	return errors.New("insert failed: connection reset")
}

type panickingInvalidator struct{}

func (panickingInvalidator) InvalidateForMutation(context.Context, models.MutationEvent) {
	panic("scan cursor corrupted")
}

type fixture struct {
	db          *gorm.DB
	layer       *cache.Layer
	users       *repositories.PostgresUserRepository
	subs        *repositories.PostgresPushSubscriptionRepository
	dispatcher  *recordingDispatcher
	coordinator *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	backend := cache.NewMemoryBackend(0)
	t.Cleanup(func() { _ = backend.Close() })

	f := &fixture{
		db:         db,
		layer:      cache.NewLayer(backend, cache.Options{OpTimeout: time.Second}, logger.NewNop()),
		users:      repositories.NewPostgresUserRepository(db),
		subs:       repositories.NewPostgresPushSubscriptionRepository(db),
		dispatcher: &recordingDispatcher{},
	}
	f.coordinator = NewCoordinator(Deps{
		Notifications: repositories.NewPostgresNotificationRepository(db),
		Users:         f.users,
		Dispatcher:    f.dispatcher,
		Invalidator:   cache.NewInvalidator(f.layer, logger.NewNop()),
	}, logger.NewNop())
	return f
}

func (f *fixture) createUser(t *testing.T, name string) uint {
	t.Helper()
	u := &models.User{Name: name, Email: fmt.Sprintf("%s@example.com", name)}
	require.NoError(t, f.users.CreateUser(context.Background(), u))
	return u.ID
}

func (f *fixture) notifications(t *testing.T) []models.Notification {
	t.Helper()
	var out []models.Notification
	require.NoError(t, f.db.Order("id").Find(&out).Error)
	return out
}

func (f *fixture) seedCache(ctx context.Context, postID string, owner uint) {
	for _, key := range []string{cache.FeedPageKey(1, 10), cache.ExplorePageKey(1, 20), cache.PostKey(postID), cache.UserFeedPageKey(owner, 1, 10)} {
		f.layer.Set(ctx, key, []byte(`{}`), time.Minute)
	}
}

func (f *fixture) cached(ctx context.Context, key string) bool {
	_, ok := f.layer.Get(ctx, key)
	return ok
}

func waitFor(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func TestCoordinator_LikeNotifiesOwnerAndPrunesGoneDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	y := f.createUser(t, "yara")
	z := f.createUser(t, "zed")

	_, err := f.subs.Upsert(ctx, y, "https://push.example/d1", models.PushKeys{P256dh: "k1", Auth: "a1"})
	require.NoError(t, err)
	_, err = f.subs.Upsert(ctx, y, "https://push.example/d2", models.PushKeys{P256dh: "k2", Auth: "a2"})
	require.NoError(t, err)

	transport := &endpointTransport{results: map[string]error{
		"https://push.example/d1": fmt.Errorf("%w: status 410", push.ErrSubscriptionGone),
	}}
	f.coordinator.deps.Dispatcher = push.NewDispatcher(f.subs, transport, push.Options{}, logger.NewNop())

	f.coordinator.Publish(ctx, models.MutationEvent{Kind: models.Liked, ActorID: z, RecipientID: y, PostID: "p1"})
	waitFor(t, f.coordinator)

	subs, err := f.subs.ListFor(ctx, y)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://push.example/d2", subs[0].Endpoint)

	records := f.notifications(t)
	require.Len(t, records, 1)
	assert.Equal(t, y, records[0].RecipientID)
	assert.Equal(t, z, records[0].ActorID)
	assert.Equal(t, models.NotificationTypeLike, records[0].Type)
	assert.Equal(t, "p1", records[0].PostID)
	assert.Equal(t, "zed liked your post", records[0].Message)
	assert.ElementsMatch(t, []string{"https://push.example/d1", "https://push.example/d2"}, transport.attempts)
}

func TestCoordinator_SelfLikeOnlyInvalidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	z := f.createUser(t, "zed")
	f.seedCache(ctx, "p1", z)

	f.coordinator.Publish(ctx, models.MutationEvent{Kind: models.Liked, ActorID: z, RecipientID: z, PostID: "p1"})
	waitFor(t, f.coordinator)

	assert.Empty(t, f.notifications(t))
	assert.Zero(t, f.dispatcher.count(), "self-like must not dispatch")
	assert.False(t, f.cached(ctx, cache.PostKey("p1")))
	assert.False(t, f.cached(ctx, cache.FeedPageKey(1, 10)))
	assert.False(t, f.cached(ctx, cache.UserFeedPageKey(z, 1, 10)))
}

func TestCoordinator_UnlikeKeepsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	y := f.createUser(t, "yara")
	z := f.createUser(t, "zed")

	f.coordinator.Publish(ctx, models.MutationEvent{Kind: models.Liked, ActorID: z, RecipientID: y, PostID: "p1"})
	waitFor(t, f.coordinator)
	f.seedCache(ctx, "p1", y)

	f.coordinator.Publish(ctx, models.MutationEvent{Kind: models.Unliked, ActorID: z, RecipientID: y, PostID: "p1"})
	waitFor(t, f.coordinator)

	assert.Len(t, f.notifications(t), 1, "unlike neither creates nor removes records")
	assert.Equal(t, 1, f.dispatcher.count())
	assert.False(t, f.cached(ctx, cache.ExplorePageKey(1, 20)))
	assert.False(t, f.cached(ctx, cache.UserFeedPageKey(y, 1, 10)))
}

func TestCoordinator_CommentNotifiesWithExcerpt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	y := f.createUser(t, "yara")
	z := f.createUser(t, "zed")

	f.coordinator.Publish(ctx, models.MutationEvent{Kind: models.CommentAdded, ActorID: z, RecipientID: y, PostID: "p1", CommentID: 7, Excerpt: "nice shot"})
	waitFor(t, f.coordinator)

	records := f.notifications(t)
	require.Len(t, records, 1)
	assert.Equal(t, models.NotificationTypeComment, records[0].Type)
	require.NotNil(t, records[0].CommentID)
	assert.Equal(t, uint(7), *records[0].CommentID)
	require.Equal(t, 1, f.dispatcher.count())
	assert.Equal(t, "zed commented: nice shot", f.dispatcher.calls[0].Body)
	assert.Equal(t, "/posts/p1", f.dispatcher.calls[0].URL)
}

func TestCoordinator_PostLifecycleDoesNotNotify(t *testing.T) {
	for _, kind := range []models.MutationKind{models.PostCreated, models.PostUpdated, models.PostDeleted} {
		t.Run(string(kind), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			x := f.createUser(t, "xavi")
			f.seedCache(ctx, "p9", x)

			f.coordinator.Publish(ctx, models.MutationEvent{Kind: kind, ActorID: x, PostID: "p9"})
			waitFor(t, f.coordinator)

			assert.Empty(t, f.notifications(t))
			assert.Zero(t, f.dispatcher.count())
			assert.False(t, f.cached(ctx, cache.FeedPageKey(1, 10)))
			assert.False(t, f.cached(ctx, cache.ExplorePageKey(1, 20)))
			assert.False(t, f.cached(ctx, cache.UserFeedPageKey(x, 1, 10)))
		})
	}
}

func TestCoordinator_FailuresAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	y := f.createUser(t, "yara")
	z := f.createUser(t, "zed")
	f.seedCache(ctx, "p1", y)

	t.Run("record insert fails", func(t *testing.T) {
		f.coordinator.deps.Notifications = failingStore{}
		f.coordinator.Publish(ctx, models.MutationEvent{Kind: models.Liked, ActorID: z, RecipientID: y, PostID: "p1"})
		waitFor(t, f.coordinator)

		assert.Equal(t, 1, f.dispatcher.count(), "push still goes out")
		assert.False(t, f.cached(ctx, cache.PostKey("p1")), "caches still invalidated")
	})

	t.Run("invalidation panics", func(t *testing.T) {
		f.coordinator.deps.Notifications = repositories.NewPostgresNotificationRepository(f.db)
		f.coordinator.deps.Invalidator = panickingInvalidator{}

		require.NotPanics(t, func() {
			f.coordinator.Publish(ctx, models.MutationEvent{Kind: models.Liked, ActorID: z, RecipientID: y, PostID: "p1"})
			waitFor(t, f.coordinator)
		})
		assert.Len(t, f.notifications(t), 1)
		assert.Equal(t, 2, f.dispatcher.count())
	})
}

func TestCoordinator_PublishDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	y := f.createUser(t, "yara")
	z := f.createUser(t, "zed")
	f.dispatcher.blockFor = make(chan struct{})

	reqCtx, cancelReq := context.WithCancel(context.Background())
	start := time.Now()
	f.coordinator.Publish(reqCtx, models.MutationEvent{Kind: models.Liked, ActorID: z, RecipientID: y, PostID: "p1"})
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	// The request finishing must not cancel work already launched.
	cancelReq()

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.coordinator.Wait(short), context.DeadlineExceeded)

	close(f.dispatcher.blockFor)
	waitFor(t, f.coordinator)
	assert.Equal(t, 1, f.dispatcher.count())
	assert.Len(t, f.notifications(t), 1)
}

func TestCoordinator_UnknownActorStillNotifies(t *testing.T) {
	f := newFixture(t)
	y := f.createUser(t, "yara")

	f.coordinator.Publish(context.Background(), models.MutationEvent{Kind: models.Liked, ActorID: 999, RecipientID: y, PostID: "p1"})
	waitFor(t, f.coordinator)

	require.Equal(t, 1, f.dispatcher.count())
	assert.Equal(t, "Someone liked your post", f.dispatcher.calls[0].Body)
}
