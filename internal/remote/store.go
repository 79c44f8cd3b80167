package remote

import (
	"context"
	"errors"

	"github.com/rapidoc/docsync/internal/document"
)

// ErrSubscriptionClosed is delivered to a subscriber when the change feed ends
// without the subscriber asking for it.
var ErrSubscriptionClosed = errors.New("subscription closed by remote")

// Callback receives the full owner-scoped document set on every change. A
// non-nil err means the feed has failed and no further snapshots will follow.
type Callback func(docs []document.Document, err error)

// Unsubscribe releases a subscription. It is safe to call more than once.
type Unsubscribe func()

// Store is the remote, eventually-consistent document service. Records are
// addressed by owner id; each record holds the owner's whole document set.
type Store interface {
	// Get returns the owner's document set or document.ErrNotFound.
	Get(ctx context.Context, ownerID string) ([]document.Document, error)
	// Put replaces the owner's whole document set.
	Put(ctx context.Context, ownerID string, docs []document.Document) error
	// QueryByCollaborator returns every document listing userID as collaborator.
	QueryByCollaborator(ctx context.Context, userID string) ([]document.Document, error)
	// QueryByOwner returns every document owned by userID (empty when none).
	QueryByOwner(ctx context.Context, userID string) ([]document.Document, error)
	// Subscribe pushes the owner's set to fn after every change.
	Subscribe(ctx context.Context, ownerID string, fn Callback) (Unsubscribe, error)
}

// EnsureOwner creates an empty record for ownerID when none exists yet.
func EnsureOwner(ctx context.Context, s Store, ownerID string) error {
	_, err := s.Get(ctx, ownerID)
	if errors.Is(err, document.ErrNotFound) {
		return s.Put(ctx, ownerID, []document.Document{})
	}
	return err
}

func withCollaborator(docs []document.Document, userID string) []document.Document {
	out := []document.Document{}
	for _, d := range docs {
		if _, ok := d.Collaborator(userID); ok {
			out = append(out, d.Clone())
		}
	}
	return out
}

func cloneAll(docs []document.Document) []document.Document {
	out := make([]document.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Clone())
	}
	return out
}
