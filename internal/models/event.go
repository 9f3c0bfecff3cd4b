package models

import "fmt"

// MutationKind names a committed content change that triggers fan-out.
type MutationKind string

const (
	PostCreated    MutationKind = "post_created"
	PostUpdated    MutationKind = "post_updated"
	PostDeleted    MutationKind = "post_deleted"
	Liked          MutationKind = "liked"
	Unliked        MutationKind = "unliked"
	CommentAdded   MutationKind = "comment_added"
	CommentDeleted MutationKind = "comment_deleted"
)

// MutationEvent describes what happened after the source of truth committed.
// RecipientID is the owner of the affected content, or 0 when unknown.
type MutationEvent struct {
	Kind        MutationKind
	ActorID     uint
	RecipientID uint
	PostID      string
	CommentID   uint
	// Excerpt carries the comment text for CommentAdded payloads.
	Excerpt string
}

// OwnerID is the author whose per-user feed the event touches. Post lifecycle events
// are always performed by the owner, so the actor stands in when no recipient is set.
func (e MutationEvent) OwnerID() uint {
	if e.RecipientID != 0 {
		return e.RecipientID
	}
	switch e.Kind {
	case PostCreated, PostUpdated, PostDeleted:
		return e.ActorID
	}
	return 0
}

// Notifies reports whether the event produces a notification record and push for its
// recipient. Only likes and comments notify, and never the actor themself.
func (e MutationEvent) Notifies() bool {
	switch e.Kind {
	case Liked, CommentAdded:
		return e.RecipientID != 0 && e.RecipientID != e.ActorID
	}
	return false
}

func (e MutationEvent) String() string {
	return fmt.Sprintf("%s(actor=%d recipient=%d post=%s)", e.Kind, e.ActorID, e.RecipientID, e.PostID)
}
