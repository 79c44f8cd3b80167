package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rapidoc/docsync/internal/document"
	"github.com/stretchr/testify/require"
)

func newDoc(t *testing.T, id, owner string, collabs ...document.Collaborator) document.Document {
	t.Helper()
	d, err := document.New(id, owner, "doc-"+id, time.Now())
	require.NoError(t, err)
	d.Collaborators = append(d.Collaborators, collabs...)
	return d
}

func TestMemoryStoreGetPutQuery(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "alice")
	require.ErrorIs(t, err, document.ErrNotFound)

	a := newDoc(t, "a1", "alice", document.Collaborator{ID: "bob", Permission: document.PermissionEdit})
	b := newDoc(t, "a2", "alice")
	require.NoError(t, s.Put(ctx, "alice", []document.Document{a, b}))

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)

	owned, err := s.QueryByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, owned, 2)

	shared, err := s.QueryByCollaborator(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, shared, 1)
	require.Equal(t, "a1", shared[0].ID)

	none, err := s.QueryByOwner(ctx, "carol")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestMemoryStorePutRejectsInvalidSet(t *testing.T) {
	s := NewMemoryStore()
	bad := newDoc(t, "x", "bob")
	require.ErrorIs(t, s.Put(context.Background(), "alice", []document.Document{bad}), document.ErrIntegrityViolation)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "alice", []document.Document{newDoc(t, "a1", "alice")}))
	got, _ := s.Get(ctx, "alice")
	got[0].Content = "mutated"
	again, _ := s.Get(ctx, "alice")
	require.Equal(t, "", again[0].Content)
}

func TestMemoryStoreSubscribeAndUnsubscribe(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	var seen [][]document.Document
	unsub, err := s.Subscribe(ctx, "alice", func(docs []document.Document, err error) {
		require.NoError(t, err)
		seen = append(seen, docs)
	})
	require.NoError(t, err)
	require.Equal(t, 1, s.Subscribers("alice"))

	require.NoError(t, s.Put(ctx, "alice", []document.Document{newDoc(t, "a1", "alice")}))
	require.Len(t, seen, 1)

	unsub()
	unsub()
	require.Equal(t, 0, s.Subscribers("alice"))
	require.NoError(t, s.Put(ctx, "alice", []document.Document{}))
	require.Len(t, seen, 1)
}

func TestMemoryStoreFaults(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.SetOffline(true)
	_, err := s.QueryByOwner(ctx, "alice")
	require.Error(t, err)
	s.SetOffline(false)

	boom := errors.New("boom")
	s.FailWrites(boom)
	require.ErrorIs(t, s.Put(ctx, "alice", []document.Document{}), boom)
	s.FailWrites(nil)

	var gotErr error
	_, err = s.Subscribe(ctx, "alice", func(_ []document.Document, err error) { gotErr = err })
	require.NoError(t, err)
	s.Break("alice", ErrSubscriptionClosed)
	require.ErrorIs(t, gotErr, ErrSubscriptionClosed)
	require.Equal(t, 0, s.Subscribers("alice"))
}

func TestEnsureOwner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, EnsureOwner(ctx, s, "alice"))
	docs, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, docs)

	require.NoError(t, s.Put(ctx, "alice", []document.Document{newDoc(t, "a1", "alice")}))
	require.NoError(t, EnsureOwner(ctx, s, "alice"))
	docs, _ = s.Get(ctx, "alice")
	require.Len(t, docs, 1)
}

type recordingArchive struct {
	owners []string
	err    error
}

func (r *recordingArchive) ArchiveSnapshot(_ context.Context, ownerID string, _ []document.Document) error {
	r.owners = append(r.owners, ownerID)
	return r.err
}

func TestArchivingStore(t *testing.T) {
	base := NewMemoryStore()
	arch := &recordingArchive{err: errors.New("bucket gone")}
	s := WithArchive(base, arch)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "alice", []document.Document{newDoc(t, "a1", "alice")}))
	require.Equal(t, []string{"alice"}, arch.owners)

	base.FailWrites(errors.New("down"))
	require.Error(t, s.Put(ctx, "alice", []document.Document{}))
	require.Len(t, arch.owners, 1)
}
