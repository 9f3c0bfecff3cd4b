package push

import (
	"fmt"

	"github.com/anonto42/nano-midea/social/internal/models"
)

const excerptRunes = 80

// Payloads builds the notification payloads for each event kind with the
// configured icon and badge.
type Payloads struct {
	Icon  string
	Badge string
}

func (p Payloads) LikePayload(actorName, postID string) models.NotificationPayload {
	return models.NotificationPayload{
		Title: "New like",
		Body:  fmt.Sprintf("%s liked your post", actorName),
		URL:   postURL(postID),
		Icon:  p.Icon,
		Badge: p.Badge,
	}
}

func (p Payloads) CommentPayload(actorName, postID, excerpt string) models.NotificationPayload {
	body := fmt.Sprintf("%s commented on your post", actorName)
	if excerpt != "" {
		body = fmt.Sprintf("%s commented: %s", actorName, truncate(excerpt, excerptRunes))
	}
	return models.NotificationPayload{
		Title: "New comment",
		Body:  body,
		URL:   postURL(postID),
		Icon:  p.Icon,
		Badge: p.Badge,
	}
}

// TestPayload is sent by the operator CLI to check a user's devices.
func (p Payloads) TestPayload() models.NotificationPayload {
	return models.NotificationPayload{
		Title: "Test notification",
		Body:  "Push notifications are working.",
		URL:   "/",
		Icon:  p.Icon,
		Badge: p.Badge,
	}
}

func postURL(postID string) string {
	return "/posts/" + postID
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
