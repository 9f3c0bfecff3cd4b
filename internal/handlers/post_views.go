package handlers

import (
	"context"
	"time"

	"github.com/anonto42/nano-midea/social/internal/cache"
	"github.com/anonto42/nano-midea/social/internal/models"
	"github.com/anonto42/nano-midea/social/internal/repositories"
)

// PostViews builds the enriched post read-views and serves them through the cache.
// A cache miss or a broken cache falls back to the stores; only store errors fail.
type PostViews struct {
	posts repositories.PostRepository
	users repositories.UserRepository
	cache *cache.Layer
	ttls  cache.TTLs
}

func NewPostViews(posts repositories.PostRepository, users repositories.UserRepository, layer *cache.Layer, ttls cache.TTLs) *PostViews {
	return &PostViews{posts: posts, users: users, cache: layer, ttls: ttls}
}

type pageLoader func(ctx context.Context, skip, limit int64) ([]models.Post, int64, error)

// Post returns the enriched post, reading through post:<id>. The second result
// reports a cache hit.
func (v *PostViews) Post(ctx context.Context, postID string) (*models.EnrichedPost, bool, error) {
	key := cache.PostKey(postID)
	var cached models.EnrichedPost
	if v.cache.GetJSON(ctx, key, &cached) {
		return &cached, true, nil
	}

	post, err := v.posts.GetPostByID(ctx, postID)
	if err != nil {
		return nil, false, err
	}
	enriched, err := v.enrich(ctx, []models.Post{*post})
	if err != nil {
		return nil, false, err
	}
	v.cache.SetJSON(ctx, key, enriched[0], v.ttls.Post)
	return &enriched[0], false, nil
}

// Feed is every post, newest first.
func (v *PostViews) Feed(ctx context.Context, page, limit int) (*models.PostPage, bool, error) {
	return v.page(ctx, cache.FeedPageKey(page, limit), v.ttls.Feed, page, limit,
		func(ctx context.Context, skip, limit int64) ([]models.Post, int64, error) {
			posts, err := v.posts.GetAllPosts(ctx, skip, limit)
			if err != nil {
				return nil, 0, err
			}
			total, err := v.posts.CountPosts(ctx)
			return posts, total, err
		})
}

// Explore is every post, most liked first.
func (v *PostViews) Explore(ctx context.Context, page, limit int) (*models.PostPage, bool, error) {
	return v.page(ctx, cache.ExplorePageKey(page, limit), v.ttls.Explore, page, limit,
		func(ctx context.Context, skip, limit int64) ([]models.Post, int64, error) {
			posts, err := v.posts.GetMostLikedPosts(ctx, skip, limit)
			if err != nil {
				return nil, 0, err
			}
			total, err := v.posts.CountPosts(ctx)
			return posts, total, err
		})
}

// UserFeed is one author's posts, newest first.
func (v *PostViews) UserFeed(ctx context.Context, authorID uint, page, limit int) (*models.PostPage, bool, error) {
	return v.page(ctx, cache.UserFeedPageKey(authorID, page, limit), v.ttls.UserFeed, page, limit,
		func(ctx context.Context, skip, limit int64) ([]models.Post, int64, error) {
			posts, err := v.posts.GetPostsByUserID(ctx, authorID, skip, limit)
			if err != nil {
				return nil, 0, err
			}
			total, err := v.posts.CountPostsByUserID(ctx, authorID)
			return posts, total, err
		})
}

func (v *PostViews) page(ctx context.Context, key string, ttl time.Duration, page, limit int, load pageLoader) (*models.PostPage, bool, error) {
	var cached models.PostPage
	if v.cache.GetJSON(ctx, key, &cached) {
		return &cached, true, nil
	}

	posts, total, err := load(ctx, int64((page-1)*limit), int64(limit))
	if err != nil {
		return nil, false, err
	}
	enriched, err := v.enrich(ctx, posts)
	if err != nil {
		return nil, false, err
	}

	view := &models.PostPage{Posts: enriched, Meta: pageMeta(page, limit, total)}
	v.cache.SetJSON(ctx, key, view, ttl)
	return view, false, nil
}

func (v *PostViews) enrich(ctx context.Context, posts []models.Post) ([]models.EnrichedPost, error) {
	ids := make([]uint, 0, len(posts))
	seen := make(map[uint]bool, len(posts))
	for _, p := range posts {
		if !seen[p.UserID] {
			seen[p.UserID] = true
			ids = append(ids, p.UserID)
		}
	}

	authors, err := v.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	enriched := make([]models.EnrichedPost, len(posts))
	for i, p := range posts {
		author := models.UserCompact{ID: p.UserID}
		if u, ok := authors[p.UserID]; ok {
			author = u.ToCompact()
		}
		enriched[i] = models.EnrichedPost{Post: p, Author: author}
	}
	return enriched, nil
}
