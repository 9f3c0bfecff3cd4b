package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/nano-midea/social/internal/models"
	"github.com/anonto42/nano-midea/social/internal/repositories"
)

func (s *testServer) notifications(t *testing.T) []models.Notification {
	t.Helper()
	var out []models.Notification
	require.NoError(t, s.db.Order("id").Find(&out).Error)
	return out
}

func (s *testServer) likesCount(t *testing.T, postID string) int {
	t.Helper()
	p, err := s.posts.GetPostByID(context.Background(), postID)
	require.NoError(t, err)
	return p.LikesCount
}

func TestLikes_NotifiesOwnerButNotSelf(t *testing.T) {
	s, coordinator := newCoordinatedServer(t)
	yara := s.createUser(t, "Yara")
	zed := s.createUser(t, "Zed")
	postID := s.seedPost(t, yara, "sunrise")

	rec := s.do(t, zed, http.MethodPost, "/api/v1/posts/"+postID+"/likes", nil)
	assertStatus(t, http.StatusCreated, rec)
	drain(t, coordinator)

	got := s.notifications(t)
	require.Len(t, got, 1)
	assert.Equal(t, models.NotificationTypeLike, got[0].Type)
	assert.Equal(t, yara, got[0].RecipientID)
	assert.Equal(t, zed, got[0].ActorID)
	assert.Equal(t, postID, got[0].PostID)
	assert.Equal(t, "Zed liked your post", got[0].Message)
	assert.Equal(t, 1, s.likesCount(t, postID))

	rec = s.do(t, zed, http.MethodPost, "/api/v1/posts/"+postID+"/likes", nil)
	assertStatus(t, http.StatusConflict, rec)

	// self-like: counted, never notified
	rec = s.do(t, yara, http.MethodPost, "/api/v1/posts/"+postID+"/likes", nil)
	assertStatus(t, http.StatusCreated, rec)
	drain(t, coordinator)
	assert.Len(t, s.notifications(t), 1)
	assert.Equal(t, 2, s.likesCount(t, postID))

	// unlike keeps the history
	rec = s.do(t, zed, http.MethodDelete, "/api/v1/posts/"+postID+"/likes", nil)
	assertStatus(t, http.StatusNoContent, rec)
	drain(t, coordinator)
	assert.Len(t, s.notifications(t), 1)
	assert.Equal(t, 1, s.likesCount(t, postID))

	rec = s.do(t, zed, http.MethodDelete, "/api/v1/posts/"+postID+"/likes", nil)
	assertStatus(t, http.StatusNotFound, rec)
}

func TestLikes_Toggle(t *testing.T) {
	s := newTestServer(t)
	owner := s.createUser(t, "Owner")
	fan := s.createUser(t, "Fan")
	postID := s.seedPost(t, owner, "hello")
	path := "/api/v1/posts/" + postID + "/likes/toggle"

	var state models.LikeState
	rec := s.do(t, fan, http.MethodPost, path, nil)
	assertStatus(t, http.StatusOK, rec)
	decode(t, rec, &state)
	assert.Equal(t, models.LikeState{PostID: postID, Liked: true, LikesCount: 1}, state)

	ev := s.recorder.last()
	assert.Equal(t, models.Liked, ev.Kind)
	assert.Equal(t, fan, ev.ActorID)
	assert.Equal(t, owner, ev.RecipientID)
	assert.True(t, ev.Notifies())

	rec = s.do(t, fan, http.MethodPost, path, nil)
	assertStatus(t, http.StatusOK, rec)
	decode(t, rec, &state)
	assert.Equal(t, models.LikeState{PostID: postID, Liked: false, LikesCount: 0}, state)
	assert.Equal(t, models.Unliked, s.recorder.last().Kind)
	assert.False(t, s.recorder.last().Notifies())

	rec = s.do(t, fan, http.MethodGet, "/api/v1/posts/"+postID+"/likes/status", nil)
	assertStatus(t, http.StatusOK, rec)
	var status struct {
		HasLiked bool `json:"has_liked"`
	}
	decode(t, rec, &status)
	assert.False(t, status.HasLiked)
}

func TestLikes_UnknownPost(t *testing.T) {
	s := newTestServer(t)
	fan := s.createUser(t, "Fan")

	rec := s.do(t, fan, http.MethodPost, "/api/v1/posts/65f1c0ffee65f1c0ffee65f1/likes", nil)
	assertStatus(t, http.StatusNotFound, rec)
	assert.Empty(t, s.recorder.kinds())
}

func TestComments_CreatePublishesExcerpt(t *testing.T) {
	s := newTestServer(t)
	owner := s.createUser(t, "Owner")
	guest := s.createUser(t, "Guest")
	postID := s.seedPost(t, owner, "hello")

	rec := s.do(t, guest, http.MethodPost, "/api/v1/posts/"+postID+"/comments", map[string]any{"content": "lovely shot"})
	assertStatus(t, http.StatusCreated, rec)

	var comment models.Comment
	decode(t, rec, &comment)
	ev := s.recorder.last()
	assert.Equal(t, models.CommentAdded, ev.Kind)
	assert.Equal(t, owner, ev.RecipientID)
	assert.Equal(t, comment.ID, ev.CommentID)
	assert.Equal(t, "lovely shot", ev.Excerpt)

	p, err := s.posts.GetPostByID(context.Background(), postID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CommentsCount)

	rec = s.do(t, guest, http.MethodGet, "/api/v1/posts/"+postID+"/comments", nil)
	assertStatus(t, http.StatusOK, rec)
	var list []models.Comment
	decode(t, rec, &list)
	assert.Len(t, list, 1)
}

func TestComments_UpdateAndDeleteAreOwnerOnly(t *testing.T) {
	s := newTestServer(t)
	owner := s.createUser(t, "Owner")
	guest := s.createUser(t, "Guest")
	postID := s.seedPost(t, owner, "hello")

	rec := s.do(t, guest, http.MethodPost, "/api/v1/posts/"+postID+"/comments", map[string]any{"content": "first"})
	assertStatus(t, http.StatusCreated, rec)
	var comment models.Comment
	decode(t, rec, &comment)
	path := "/api/v1/comments/" + itoa(comment.ID)

	rec = s.do(t, owner, http.MethodPut, path, map[string]any{"content": "edited"})
	assertStatus(t, http.StatusForbidden, rec)
	rec = s.do(t, guest, http.MethodPut, path, map[string]any{"content": "edited"})
	assertStatus(t, http.StatusOK, rec)

	rec = s.do(t, owner, http.MethodDelete, path, nil)
	assertStatus(t, http.StatusForbidden, rec)
	rec = s.do(t, guest, http.MethodDelete, path, nil)
	assertStatus(t, http.StatusNoContent, rec)

	ev := s.recorder.last()
	assert.Equal(t, models.CommentDeleted, ev.Kind)
	assert.Equal(t, owner, ev.OwnerID())
	assert.False(t, ev.Notifies())

	p, err := s.posts.GetPostByID(context.Background(), postID)
	require.NoError(t, err)
	assert.Zero(t, p.CommentsCount)

	rec = s.do(t, guest, http.MethodDelete, path, nil)
	assertStatus(t, http.StatusNotFound, rec)
	rec = s.do(t, guest, http.MethodDelete, "/api/v1/comments/abc", nil)
	assertStatus(t, http.StatusBadRequest, rec)
}

func TestNotifications_ReadAPI(t *testing.T) {
	s := newTestServer(t)
	ann := s.createUser(t, "Ann")
	bob := s.createUser(t, "Bob")
	repo := repositories.NewPostgresNotificationRepository(s.db)
	n := &models.Notification{
		Type: models.NotificationTypeComment, ActorID: bob, RecipientID: ann,
		Message: "Bob commented on your post", CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.CreateNotification(context.Background(), n))

	rec := s.do(t, ann, http.MethodGet, "/api/v1/notifications", nil)
	assertStatus(t, http.StatusOK, rec)
	var body struct {
		Data struct {
			Notifications []models.EnrichedNotification `json:"notifications"`
		} `json:"data"`
		Meta models.PageMeta `json:"meta"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Data.Notifications, 1)
	assert.Equal(t, "Bob", body.Data.Notifications[0].Actor.Name)
	assert.Equal(t, int64(1), body.Meta.TotalItems)

	// another user's notification is not visible to bob
	rec = s.do(t, bob, http.MethodPut, "/api/v1/notifications/"+itoa(n.ID)+"/read", nil)
	assertStatus(t, http.StatusNotFound, rec)

	rec = s.do(t, ann, http.MethodPut, "/api/v1/notifications/"+itoa(n.ID)+"/read", nil)
	assertStatus(t, http.StatusOK, rec)

	rec = s.do(t, ann, http.MethodGet, "/api/v1/notifications/unread-count", nil)
	assertStatus(t, http.StatusOK, rec)
	var count struct {
		Data struct {
			Count int64 `json:"count"`
		} `json:"data"`
	}
	decode(t, rec, &count)
	assert.Zero(t, count.Data.Count)
}
