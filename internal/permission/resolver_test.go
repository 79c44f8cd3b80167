package permission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rapidoc/docsync/internal/document"
	"github.com/rapidoc/docsync/internal/remote"
	"github.com/stretchr/testify/require"
)

func doc(id, owner string, collabs ...document.Collaborator) document.Document {
	return document.Document{ID: id, Name: id, OwnerID: owner, Collaborators: collabs, LastModified: time.Now()}
}

func TestResolveRole(t *testing.T) {
	d := doc("d1", "alice",
		document.Collaborator{ID: "bob", Permission: document.PermissionEdit},
		document.Collaborator{ID: "carol", Permission: document.PermissionComment},
		document.Collaborator{ID: "dan", Permission: document.PermissionRead},
	)
	require.Equal(t, document.RoleOwner, ResolveRole(d, "alice"))
	require.Equal(t, document.RoleEdit, ResolveRole(d, "bob"))
	require.Equal(t, document.RoleComment, ResolveRole(d, "carol"))
	require.Equal(t, document.RoleRead, ResolveRole(d, "dan"))
	require.Equal(t, document.RoleNone, ResolveRole(d, "eve"))
	require.Equal(t, document.RoleNone, ResolveRole(d, ""))
}

func TestListAuthorizedUnion(t *testing.T) {
	s := remote.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "alice", []document.Document{
		doc("a1", "alice", document.Collaborator{ID: "bob", Permission: document.PermissionRead}),
		doc("a2", "alice"),
	}))
	require.NoError(t, s.Put(ctx, "bob", []document.Document{doc("b1", "bob")}))

	r := NewResolver(s)
	got, err := r.ListAuthorized(ctx, "bob")
	require.NoError(t, err)
	roles := map[string]document.Role{}
	for _, a := range got {
		roles[a.Document.ID] = a.Role
		// nothing listed may resolve to none
		require.NotEqual(t, document.RoleNone, ResolveRole(a.Document, "bob"))
	}
	require.Equal(t, map[string]document.Role{"b1": document.RoleOwner, "a1": document.RoleRead}, roles)
}

func TestListAuthorizedRequiresIdentity(t *testing.T) {
	r := NewResolver(remote.NewMemoryStore())
	_, err := r.ListAuthorized(context.Background(), "")
	require.ErrorIs(t, err, document.ErrAuthorization)
}

// fakeQuerier returns canned results so corrupt data can reach the resolver.
type fakeQuerier struct {
	owned, shared []document.Document
	err           error
}

func (f *fakeQuerier) QueryByOwner(context.Context, string) ([]document.Document, error) {
	return f.owned, f.err
}

func (f *fakeQuerier) QueryByCollaborator(context.Context, string) ([]document.Document, error) {
	return f.shared, nil
}

func TestListAuthorizedRejectsOwnerAsCollaborator(t *testing.T) {
	bad := doc("d1", "alice", document.Collaborator{ID: "alice", Permission: document.PermissionEdit})
	r := NewResolver(&fakeQuerier{owned: []document.Document{bad}, shared: []document.Document{bad}})
	_, err := r.ListAuthorized(context.Background(), "alice")
	require.ErrorIs(t, err, document.ErrIntegrityViolation)
}

func TestListAuthorizedRejectsDuplicates(t *testing.T) {
	d := doc("d1", "carol", document.Collaborator{ID: "bob", Permission: document.PermissionEdit})
	r := NewResolver(&fakeQuerier{shared: []document.Document{d, d}})
	_, err := r.ListAuthorized(context.Background(), "bob")
	require.ErrorIs(t, err, document.ErrIntegrityViolation)
}

func TestListAuthorizedSkipsDocumentsWithoutRole(t *testing.T) {
	stray := doc("d1", "carol")
	r := NewResolver(&fakeQuerier{shared: []document.Document{stray}})
	got, err := r.ListAuthorized(context.Background(), "bob")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestListAuthorizedPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("unreachable")
	r := NewResolver(&fakeQuerier{err: boom})
	_, err := r.ListAuthorized(context.Background(), "bob")
	require.ErrorIs(t, err, boom)
}
