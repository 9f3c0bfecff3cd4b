package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/gorm"

	"github.com/anonto42/nano-midea/social/internal/cache"
	"github.com/anonto42/nano-midea/social/internal/middleware"
	"github.com/anonto42/nano-midea/social/internal/models"
	"github.com/anonto42/nano-midea/social/internal/repositories"
	"github.com/anonto42/nano-midea/social/internal/testutil"
	"github.com/anonto42/nano-midea/social/pkg/logger"
	"github.com/anonto42/nano-midea/social/pkg/validators"
)

const testSecret = "test-secret"

// memPostRepo is an in-memory PostRepository with the same ordering and error
// contract as the MongoDB implementation.
type memPostRepo struct {
	mu    sync.Mutex
	posts map[primitive.ObjectID]*models.Post
	clock time.Time
}

func newMemPostRepo() *memPostRepo {
	return &memPostRepo{
		posts: make(map[primitive.ObjectID]*models.Post),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memPostRepo) lookup(id string) (*models.Post, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repositories.ErrInvalidPostID
	}
	p, ok := m.posts[objID]
	if !ok {
		return nil, repositories.ErrPostNotFound
	}
	return p, nil
}

func (m *memPostRepo) CreatePost(_ context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Second)
	post.ID = primitive.NewObjectID()
	post.CreatedAt = m.clock
	post.UpdatedAt = m.clock
	cp := *post
	m.posts[post.ID] = &cp
	return nil
}

func (m *memPostRepo) GetPostByID(_ context.Context, id string) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	cp := *p
	return &cp, nil
}

func (m *memPostRepo) list(filter func(*models.Post) bool, less func(a, b *models.Post) bool, skip, limit int64) []models.Post {
	var all []*models.Post
	for _, p := range m.posts {
		if filter(p) {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return less(all[i], all[j]) })
	out := []models.Post{}
	for i := skip; i < int64(len(all)) && i < skip+limit; i++ {
		out = append(out, *all[i])
	}
	return out
}

func newestFirst(a, b *models.Post) bool { return a.CreatedAt.After(b.CreatedAt) }

func (m *memPostRepo) GetPostsByUserID(_ context.Context, userID uint, skip, limit int64) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(p *models.Post) bool { return p.UserID == userID }, newestFirst, skip, limit), nil
}

func (m *memPostRepo) CountPostsByUserID(_ context.Context, userID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.posts {
		if p.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memPostRepo) GetAllPosts(_ context.Context, skip, limit int64) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(*models.Post) bool { return true }, newestFirst, skip, limit), nil
}

func (m *memPostRepo) GetMostLikedPosts(_ context.Context, skip, limit int64) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(*models.Post) bool { return true }, func(a, b *models.Post) bool {
		if a.LikesCount != b.LikesCount {
			return a.LikesCount > b.LikesCount
		}
		return newestFirst(a, b)
	}, skip, limit), nil
}

func (m *memPostRepo) CountPosts(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.posts)), nil
}

func (m *memPostRepo) UpdatePost(_ context.Context, id string, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.lookup(id)
	if err != nil {
		return err
	}
	p.Content, p.ImageURLs, p.VideoURLs = post.Content, post.ImageURLs, post.VideoURLs
	return nil
}

func (m *memPostRepo) DeletePost(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.lookup(id)
	if err != nil {
		return err
	}
	delete(m.posts, p.ID)
	return nil
}

func (m *memPostRepo) AdjustLikesCount(_ context.Context, postID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.lookup(postID)
	if err != nil {
		return err
	}
	p.LikesCount = max(p.LikesCount+delta, 0)
	return nil
}

func (m *memPostRepo) AdjustCommentsCount(_ context.Context, postID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.lookup(postID)
	if err != nil {
		return err
	}
	p.CommentsCount = max(p.CommentsCount+delta, 0)
	return nil
}

// recordingPublisher captures published events instead of fanning them out.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.MutationEvent
}

func (r *recordingPublisher) Publish(_ context.Context, event models.MutationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) kinds() []models.MutationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.MutationKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *recordingPublisher) last() models.MutationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type testServer struct {
	e        *echo.Echo
	db       *gorm.DB
	posts    *memPostRepo
	users    *repositories.PostgresUserRepository
	layer    *cache.Layer
	events   EventPublisher
	recorder *recordingPublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	backend := cache.NewMemoryBackend(0)
	t.Cleanup(func() { _ = backend.Close() })

	s := &testServer{
		e:        echo.New(),
		db:       db,
		posts:    newMemPostRepo(),
		users:    repositories.NewPostgresUserRepository(db),
		layer:    cache.NewLayer(backend, cache.Options{OpTimeout: time.Second}, logger.NewNop()),
		recorder: &recordingPublisher{},
	}
	s.events = s.recorder
	s.mount()
	return s
}

// newTestServerWith builds the server after fn has seen the stores, for publishers that
// need them.
func newTestServerWith(t *testing.T, fn func(s *testServer) EventPublisher) *testServer {
	t.Helper()
	s := newTestServer(t)
	s.e = echo.New()
	s.events = fn(s)
	s.mount()
	return s
}

func (s *testServer) mount() {
	log := logger.NewNop()
	s.e.Validator = validators.NewValidator()
	s.e.Use(middleware.RequestID())

	likes := repositories.NewPostgresLikeRepository(s.db)
	comments := repositories.NewPostgresCommentRepository(s.db)
	notifications := repositories.NewPostgresNotificationRepository(s.db)
	subs := repositories.NewPostgresPushSubscriptionRepository(s.db)
	views := NewPostViews(s.posts, s.users, s.layer, cache.DefaultTTLs())

	public := s.e.Group("/api/v1")
	push := NewPushHandler(subs, "BPublicKey", log)
	push.RegisterPublicPushRoutes(public)

	api := s.e.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware(testSecret))
	NewPostHandler(s.posts, likes, comments, views, s.events, log).RegisterPostRoutes(api)
	NewFeedHandler(views).RegisterFeedRoutes(api)
	NewLikeHandler(likes, s.posts, s.events, log).RegisterLikeRoutes(api)
	NewCommentHandler(comments, s.posts, s.events, log).RegisterCommentRoutes(api)
	NewNotificationHandler(notifications, s.users, log).RegisterNotificationRoutes(api)
	push.RegisterPushRoutes(api)
}

func (s *testServer) createUser(t *testing.T, name string) uint {
	t.Helper()
	u := &models.User{Name: name, Email: fmt.Sprintf("%s@example.com", strings.ToLower(name))}
	require.NoError(t, s.users.CreateUser(context.Background(), u))
	return u.ID
}

func (s *testServer) seedPost(t *testing.T, owner uint, content string) string {
	t.Helper()
	p := &models.Post{UserID: owner, Content: content}
	require.NoError(t, s.posts.CreatePost(context.Background(), p))
	return p.ID.Hex()
}

func token(t *testing.T, userID uint) string {
	t.Helper()
	claims := &models.JwtCustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

// do performs a request as userID (0 for anonymous).
func (s *testServer) do(t *testing.T, userID uint, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if userID != 0 {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t, userID))
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

// pageBody is the listing envelope.
type pageBody struct {
	Success bool `json:"success"`
	Data    struct {
		Posts []models.EnrichedPost `json:"posts"`
	} `json:"data"`
	Meta models.PageMeta `json:"meta"`
}

func assertStatus(t *testing.T, want int, rec *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, want, rec.Code, "body: %s", rec.Body.String())
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
