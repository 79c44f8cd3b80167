package document

import (
	"fmt"
	"strings"
	"time"
)

// Permission is the access level granted to a collaborator.
type Permission string

const (
	PermissionRead    Permission = "read"
	PermissionComment Permission = "comment"
	PermissionEdit    Permission = "edit"
)

// Valid reports whether p is one of the known permissions.
func (p Permission) Valid() bool {
	switch p {
	case PermissionRead, PermissionComment, PermissionEdit:
		return true
	}
	return false
}

// Role is the privilege a user holds on a document.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleEdit    Role = "edit"
	RoleComment Role = "comment"
	RoleRead    Role = "read"
	RoleNone    Role = "none"
)

// CanView reports whether the role exposes the document at all.
func (r Role) CanView() bool {
	switch r {
	case RoleOwner, RoleEdit, RoleComment, RoleRead:
		return true
	}
	return false
}

// CanWrite reports whether the role may change content or name.
func (r Role) CanWrite() bool { return r == RoleOwner || r == RoleEdit }

// RoleFor maps a collaborator permission onto its role.
func RoleFor(p Permission) Role {
	switch p {
	case PermissionEdit:
		return RoleEdit
	case PermissionComment:
		return RoleComment
	case PermissionRead:
		return RoleRead
	}
	return RoleNone
}

// Collaborator grants a non-owner access to a document.
type Collaborator struct {
	ID         string     `json:"id" bson:"id" firestore:"id"`
	Permission Permission `json:"permission" bson:"permission" firestore:"permission"`
}

// Document is the unit of synchronization. Records are stored whole, grouped
// per owner, and replaced wholesale on every write.
type Document struct {
	ID            string         `json:"id" bson:"id" firestore:"id"`
	Name          string         `json:"name" bson:"name" firestore:"name"`
	Content       string         `json:"content" bson:"content" firestore:"content"`
	OwnerID       string         `json:"ownerId" bson:"ownerId" firestore:"ownerId"`
	Collaborators []Collaborator `json:"collaborators" bson:"collaborators" firestore:"collaborators"`
	LastModified  time.Time      `json:"lastModified" bson:"lastModified" firestore:"lastModified"`
}

// New returns a fresh document owned by ownerID with empty content and no
// collaborators.
func New(id, ownerID, name string, now time.Time) (Document, error) {
	d := Document{
		ID:            id,
		Name:          strings.TrimSpace(name),
		OwnerID:       ownerID,
		Collaborators: []Collaborator{},
		LastModified:  now.UTC(),
	}
	if err := d.Validate(); err != nil {
		return Document{}, err
	}
	return d, nil
}

// Validate enforces the record invariants. Integrity problems (owner listed
// as collaborator, duplicate collaborator ids) wrap ErrIntegrityViolation;
// everything else wraps ErrInvalidDocument.
func (d Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}
	if d.OwnerID == "" {
		return fmt.Errorf("%w: document %s has no owner", ErrInvalidDocument, d.ID)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: document %s has an empty name", ErrInvalidDocument, d.ID)
	}
	if d.LastModified.IsZero() {
		return fmt.Errorf("%w: document %s has no lastModified", ErrInvalidDocument, d.ID)
	}
	return ValidateCollaborators(d.OwnerID, d.Collaborators)
}

// ValidateCollaborators checks a collaborator list against its owner.
func ValidateCollaborators(ownerID string, list []Collaborator) error {
	seen := make(map[string]struct{}, len(list))
	for _, c := range list {
		if c.ID == "" {
			return fmt.Errorf("%w: collaborator without id", ErrInvalidDocument)
		}
		if !c.Permission.Valid() {
			return fmt.Errorf("%w: collaborator %s has unknown permission %q", ErrInvalidDocument, c.ID, c.Permission)
		}
		if c.ID == ownerID {
			return fmt.Errorf("%w: owner %s listed as collaborator", ErrIntegrityViolation, ownerID)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: collaborator %s listed twice", ErrIntegrityViolation, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy so callers never share collaborator slices.
func (d Document) Clone() Document {
	out := d
	out.Collaborators = make([]Collaborator, len(d.Collaborators))
	copy(out.Collaborators, d.Collaborators)
	return out
}

// Collaborator returns the entry for userID, if any.
func (d Document) Collaborator(userID string) (Collaborator, bool) {
	for _, c := range d.Collaborators {
		if c.ID == userID {
			return c, true
		}
	}
	return Collaborator{}, false
}

// CollaboratorIDs lists the collaborator ids, used by stores to index records.
func CollaboratorIDs(docs []Document) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, d := range docs {
		for _, c := range d.Collaborators {
			if _, ok := seen[c.ID]; ok {
				continue
			}
			seen[c.ID] = struct{}{}
			out = append(out, c.ID)
		}
	}
	return out
}

// ValidateSet checks a whole owner-scoped record before it is written.
func ValidateSet(ownerID string, docs []Document) error {
	ids := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if err := d.Validate(); err != nil {
			return err
		}
		if d.OwnerID != ownerID {
			return fmt.Errorf("%w: document %s owned by %s stored under %s", ErrIntegrityViolation, d.ID, d.OwnerID, ownerID)
		}
		if _, dup := ids[d.ID]; dup {
			return fmt.Errorf("%w: duplicate document id %s", ErrIntegrityViolation, d.ID)
		}
		ids[d.ID] = struct{}{}
	}
	return nil
}

// Replace returns docs with the entry for d.ID swapped out for d, appending d
// when it is not present.
func Replace(docs []Document, d Document) []Document {
	out := make([]Document, 0, len(docs)+1)
	replaced := false
	for _, cur := range docs {
		if cur.ID == d.ID {
			out = append(out, d)
			replaced = true
			continue
		}
		out = append(out, cur)
	}
	if !replaced {
		out = append(out, d)
	}
	return out
}
