package cache

import (
	"fmt"
	"strings"
	"time"
)

// Namespaces of cached read-views.
const (
	NamespaceFeed     = "feed"
	NamespaceExplore  = "explore"
	NamespacePost     = "post"
	NamespaceUserFeed = "feed:user"
)

// TTLs are the lifetimes of each kind of read-view.
type TTLs struct {
	Feed     time.Duration
	Explore  time.Duration
	Post     time.Duration
	UserFeed time.Duration
}

// DefaultTTLs returns feed and explore pages at 60s, single posts and per-user feeds at 300s.
func DefaultTTLs() TTLs {
	return TTLs{
		Feed:     60 * time.Second,
		Explore:  60 * time.Second,
		Post:     300 * time.Second,
		UserFeed: 300 * time.Second,
	}
}

func FeedPageKey(page, limit int) string {
	return fmt.Sprintf("%s:%d:%d", NamespaceFeed, page, limit)
}

func ExplorePageKey(page, limit int) string {
	return fmt.Sprintf("%s:%d:%d", NamespaceExplore, page, limit)
}

// PostKey is the key of one post view. Object ids parse in either hex case, so the
// key always carries the lowercase form that mutation events use.
func PostKey(postID string) string {
	return NamespacePost + ":" + strings.ToLower(postID)
}

// UserFeedNamespace is the namespace of one author's post listings.
func UserFeedNamespace(authorID uint) string {
	return fmt.Sprintf("%s:%d", NamespaceUserFeed, authorID)
}

func UserFeedPageKey(authorID uint, page, limit int) string {
	return fmt.Sprintf("%s:%d:%d", UserFeedNamespace(authorID), page, limit)
}

// NamespaceOf maps a key back to the namespace it was issued under:
//
//	feed:2:10           -> feed
//	feed:user:7:1:10    -> feed:user:7
//	explore:1:20        -> explore
//	post:<id>           -> post:<id>
//
// Keys outside the known layout map to their first segment.
func NamespaceOf(key string) string {
	switch {
	case strings.HasPrefix(key, NamespaceUserFeed+":"):
		rest := strings.TrimPrefix(key, NamespaceUserFeed+":")
		author, _, _ := strings.Cut(rest, ":")
		return NamespaceUserFeed + ":" + author
	case strings.HasPrefix(key, NamespacePost+":"):
		return key
	}
	ns, _, _ := strings.Cut(key, ":")
	return ns
}
