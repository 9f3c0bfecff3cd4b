package cache

import (
	"context"

	"github.com/anonto42/nano-midea/social/internal/models"
	"github.com/anonto42/nano-midea/social/pkg/logger"
)

// Invalidator translates committed mutations into the cache keys they make stale.
type Invalidator struct {
	layer *Layer
	log   logger.Logger
}

func NewInvalidator(layer *Layer, log logger.Logger) *Invalidator {
	return &Invalidator{layer: layer, log: log}
}

// InvalidateForMutation erases every feed and explore page, the post's own key and
// the owner's per-user feed. Every mutation kind changes either the post's rendered
// state or its position in ordered feeds, so the policy is the same for all of them.
// It must run after the mutation has committed.
func (i *Invalidator) InvalidateForMutation(ctx context.Context, event models.MutationEvent) {
	if !i.layer.Enabled() {
		return
	}
	namespaces := []string{NamespaceFeed, NamespaceExplore}
	if owner := event.OwnerID(); owner != 0 {
		namespaces = append(namespaces, UserFeedNamespace(owner))
	}
	i.layer.InvalidateNamespaces(ctx, namespaces...)
	if event.PostID != "" {
		i.layer.Invalidate(ctx, PostKey(event.PostID))
	}
	i.log.Debug(ctx, "Invalidated caches for mutation", "event", event.String(), "namespaces", namespaces)
}
