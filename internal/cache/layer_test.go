package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/nano-midea/social/pkg/logger"
)

func newRedisLayer(t *testing.T) (*Layer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLayer(NewRedisBackend(client), Options{OpTimeout: time.Second}, logger.NewNop()), mr
}

func newMemoryLayer(t *testing.T) *Layer {
	t.Helper()
	backend := NewMemoryBackend(0)
	t.Cleanup(func() { _ = backend.Close() })
	return NewLayer(backend, Options{OpTimeout: time.Second}, logger.NewNop())
}

// failingBackend errors on every call.
type failingBackend struct {
	calls atomic.Int32
}

var errBackendDown = errors.New("connection refused")

func (f *failingBackend) Get(context.Context, string) ([]byte, error) {
	f.calls.Add(1)
	return nil, errBackendDown
}

func (f *failingBackend) Set(context.Context, string, []byte, time.Duration) error {
	f.calls.Add(1)
	return errBackendDown
}

func (f *failingBackend) Delete(context.Context, ...string) error {
	f.calls.Add(1)
	return errBackendDown
}

func (f *failingBackend) ScanPrefix(context.Context, string) ([]string, error) {
	f.calls.Add(1)
	return nil, errBackendDown
}

func (f *failingBackend) Close() error { return nil }

// stalledBackend blocks until the operation context expires.
type stalledBackend struct{}

func (stalledBackend) Get(ctx context.Context, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledBackend) Set(ctx context.Context, _ string, _ []byte, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledBackend) Delete(ctx context.Context, _ ...string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledBackend) Close() error { return nil }

func TestLayer_Redis_SetGetMiss(t *testing.T) {
	layer, mr := newRedisLayer(t)
	ctx := context.Background()

	_, ok := layer.Get(ctx, "post:abc")
	assert.False(t, ok, "empty cache should miss")

	layer.Set(ctx, "post:abc", []byte(`{"id":"abc"}`), 300*time.Second)

	got, ok := layer.Get(ctx, "post:abc")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"abc"}`, string(got))
	assert.Equal(t, 300*time.Second, mr.TTL("post:abc"))

	mr.FastForward(301 * time.Second)
	_, ok = layer.Get(ctx, "post:abc")
	assert.False(t, ok, "expired entry should read as absent")
}

func TestLayer_InvalidateNamespaces(t *testing.T) {
	backends := map[string]func(t *testing.T) *Layer{
		"redis scan": func(t *testing.T) *Layer {
			layer, _ := newRedisLayer(t)
			return layer
		},
		"memory index": newMemoryLayer,
	}

	for name, build := range backends {
		t.Run(name, func(t *testing.T) {
			layer := build(t)
			ctx := context.Background()

			for _, key := range []string{
				FeedPageKey(1, 10),
				FeedPageKey(2, 10),
				FeedPageKey(1, 50),
				UserFeedPageKey(7, 1, 10),
				UserFeedPageKey(8, 1, 10),
				ExplorePageKey(1, 20),
				PostKey("p1"),
			} {
				layer.Set(ctx, key, []byte("x"), time.Minute)
			}

			layer.InvalidateNamespaces(ctx, NamespaceFeed, UserFeedNamespace(7))

			for _, gone := range []string{FeedPageKey(1, 10), FeedPageKey(2, 10), FeedPageKey(1, 50), UserFeedPageKey(7, 1, 10)} {
				_, ok := layer.Get(ctx, gone)
				assert.False(t, ok, "%s should be invalidated", gone)
			}
			for _, kept := range []string{UserFeedPageKey(8, 1, 10), ExplorePageKey(1, 20), PostKey("p1")} {
				_, ok := layer.Get(ctx, kept)
				assert.True(t, ok, "%s should survive", kept)
			}
		})
	}
}

func TestLayer_InvalidateKeys(t *testing.T) {
	layer := newMemoryLayer(t)
	ctx := context.Background()

	layer.Set(ctx, PostKey("p1"), []byte("x"), time.Minute)
	layer.Invalidate(ctx, PostKey("p1"), PostKey("never-set"))

	_, ok := layer.Get(ctx, PostKey("p1"))
	assert.False(t, ok)
	assert.Zero(t, layer.index.Size())
}

func TestLayer_ExpiredKeysLeaveIndex(t *testing.T) {
	backend := NewMemoryBackend(0)
	t.Cleanup(func() { _ = backend.Close() })
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	backend.now = func() time.Time { return now }
	layer := NewLayer(backend, Options{OpTimeout: time.Second}, logger.NewNop())
	ctx := context.Background()

	for page := 1; page <= 50; page++ {
		layer.Set(ctx, FeedPageKey(page, 10), []byte("x"), time.Minute)
	}
	layer.Set(ctx, UserFeedPageKey(7, 1, 10), []byte("x"), 5*time.Minute)
	layer.Set(ctx, PostKey("p1"), []byte("x"), time.Minute)
	require.Equal(t, 52, layer.index.Size())

	now = now.Add(2 * time.Minute)
	backend.sweep()
	assert.Equal(t, 1, layer.index.Size(), "only the unexpired user feed page stays indexed")

	// an expired entry read before the janitor runs leaves the index too
	now = now.Add(5 * time.Minute)
	_, ok := layer.Get(ctx, UserFeedPageKey(7, 1, 10))
	assert.False(t, ok)
	assert.Zero(t, layer.index.Size())

	// a key written again after expiry is tracked and invalidated as usual
	layer.Set(ctx, FeedPageKey(1, 10), []byte("y"), time.Minute)
	layer.InvalidateNamespaces(ctx, NamespaceFeed)
	_, ok = layer.Get(ctx, FeedPageKey(1, 10))
	assert.False(t, ok)
}

func TestLayer_FailingBackend_FailsOpen(t *testing.T) {
	backend := &failingBackend{}
	layer := NewLayer(backend, Options{OpTimeout: time.Second, BreakerFailures: 3, BreakerOpen: time.Minute}, logger.NewNop())
	ctx := context.Background()

	assert.NotPanics(t, func() {
		for i := 0; i < 10; i++ {
			_, ok := layer.Get(ctx, FeedPageKey(1, 10))
			assert.False(t, ok)
			layer.Set(ctx, FeedPageKey(1, 10), []byte("x"), time.Minute)
			layer.SetJSON(ctx, PostKey("p1"), map[string]string{"id": "p1"}, time.Minute)
			layer.Invalidate(ctx, PostKey("p1"))
			layer.InvalidateNamespaces(ctx, NamespaceFeed, NamespaceExplore)
		}
	})
	assert.Equal(t, int32(3), backend.calls.Load(), "breaker should stop calling the backend once open")
}

func TestLayer_StalledBackend_BoundedByTimeout(t *testing.T) {
	layer := NewLayer(stalledBackend{}, Options{OpTimeout: 20 * time.Millisecond}, logger.NewNop())
	ctx := context.Background()

	start := time.Now()
	_, ok := layer.Get(ctx, FeedPageKey(1, 10))
	layer.Set(ctx, FeedPageKey(1, 10), []byte("x"), time.Minute)
	layer.InvalidateNamespaces(ctx, NamespaceFeed)

	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLayer_NilBackend_Bypass(t *testing.T) {
	layer := NewLayer(nil, Options{}, logger.NewNop())
	ctx := context.Background()

	assert.False(t, layer.Enabled())
	layer.Set(ctx, "feed:1:10", []byte("x"), time.Minute)
	_, ok := layer.Get(ctx, "feed:1:10")
	assert.False(t, ok)
	assert.NoError(t, layer.Close())

	var nilLayer *Layer
	_, ok = nilLayer.Get(ctx, "feed:1:10")
	assert.False(t, ok)
	nilLayer.InvalidateNamespaces(ctx, NamespaceFeed)
}

func TestLayer_JSONRoundTrip(t *testing.T) {
	layer := newMemoryLayer(t)
	ctx := context.Background()

	type view struct {
		Page  int      `json:"page"`
		Posts []string `json:"posts"`
	}
	layer.SetJSON(ctx, FeedPageKey(1, 10), view{Page: 1, Posts: []string{"a", "b"}}, time.Minute)

	var got view
	require.True(t, layer.GetJSON(ctx, FeedPageKey(1, 10), &got))
	assert.Equal(t, view{Page: 1, Posts: []string{"a", "b"}}, got)

	layer.Set(ctx, FeedPageKey(2, 10), []byte("not json"), time.Minute)
	assert.False(t, layer.GetJSON(ctx, FeedPageKey(2, 10), &got), "undecodable value should read as a miss")
}
