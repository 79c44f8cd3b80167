package document

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDocumentDefaults(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	d, err := New("d1", "alice", "  Notes  ", now)
	require.NoError(t, err)
	require.Equal(t, "Notes", d.Name)
	require.Equal(t, "", d.Content)
	require.Equal(t, "alice", d.OwnerID)
	require.Empty(t, d.Collaborators)
	require.Equal(t, now, d.LastModified)

	_, err = New("d2", "alice", "   ", now)
	require.ErrorIs(t, err, ErrInvalidDocument)
}

func TestValidateRejectsOwnerAsCollaborator(t *testing.T) {
	d := Document{ID: "d1", Name: "x", OwnerID: "alice", LastModified: time.Now(),
		Collaborators: []Collaborator{{ID: "alice", Permission: PermissionEdit}}}
	require.ErrorIs(t, d.Validate(), ErrIntegrityViolation)
}

func TestValidateRejectsDuplicateCollaborator(t *testing.T) {
	d := Document{ID: "d1", Name: "x", OwnerID: "alice", LastModified: time.Now(),
		Collaborators: []Collaborator{{ID: "bob", Permission: PermissionEdit}, {ID: "bob", Permission: PermissionRead}}}
	require.ErrorIs(t, d.Validate(), ErrIntegrityViolation)
}

func TestValidateRejectsUnknownPermission(t *testing.T) {
	d := Document{ID: "d1", Name: "x", OwnerID: "alice", LastModified: time.Now(),
		Collaborators: []Collaborator{{ID: "bob", Permission: "admin"}}}
	err := d.Validate()
	require.ErrorIs(t, err, ErrInvalidDocument)
	require.False(t, errors.Is(err, ErrIntegrityViolation))
}

func TestValidateSet(t *testing.T) {
	now := time.Now()
	a, _ := New("d1", "alice", "a", now)
	b, _ := New("d1", "alice", "b", now)
	require.ErrorIs(t, ValidateSet("alice", []Document{a, b}), ErrIntegrityViolation)
	require.ErrorIs(t, ValidateSet("bob", []Document{a}), ErrIntegrityViolation)
	require.NoError(t, ValidateSet("alice", []Document{a}))
}

func TestRolePermissions(t *testing.T) {
	require.True(t, RoleOwner.CanWrite())
	require.True(t, RoleEdit.CanWrite())
	require.False(t, RoleComment.CanWrite())
	require.False(t, RoleRead.CanWrite())
	require.False(t, RoleNone.CanView())
	require.Equal(t, RoleComment, RoleFor(PermissionComment))
	require.Equal(t, RoleNone, RoleFor("bogus"))
}

func TestCloneDoesNotShareCollaborators(t *testing.T) {
	d := Document{Collaborators: []Collaborator{{ID: "bob", Permission: PermissionRead}}}
	c := d.Clone()
	c.Collaborators[0].Permission = PermissionEdit
	require.Equal(t, PermissionRead, d.Collaborators[0].Permission)
}

func TestReplace(t *testing.T) {
	docs := []Document{{ID: "a", Content: "1"}, {ID: "b", Content: "2"}}
	out := Replace(docs, Document{ID: "b", Content: "3"})
	require.Len(t, out, 2)
	require.Equal(t, "3", out[1].Content)
	require.Equal(t, "2", docs[1].Content)

	out = Replace(docs, Document{ID: "c"})
	require.Len(t, out, 3)
}

func TestPreviewAndMatches(t *testing.T) {
	require.Equal(t, "first", Preview("first\nsecond"))
	long := strings.Repeat("x", 150)
	require.Equal(t, strings.Repeat("x", 100)+"...", Preview(long))

	d := Document{Name: "Quarterly Plan", Content: "budget numbers"}
	require.True(t, d.Matches("plan"))
	require.True(t, d.Matches("BUDGET"))
	require.True(t, d.Matches(""))
	require.False(t, d.Matches("roadmap"))
}
