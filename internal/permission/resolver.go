package permission

import (
	"context"
	"fmt"

	"github.com/rapidoc/docsync/internal/document"
	"github.com/rapidoc/docsync/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// ResolveRole derives the role userID holds on doc. Ownership wins, then the
// collaborator entry, otherwise RoleNone.
func ResolveRole(doc document.Document, userID string) document.Role {
	if userID == "" {
		return document.RoleNone
	}
	if doc.OwnerID == userID {
		return document.RoleOwner
	}
	if c, ok := doc.Collaborator(userID); ok {
		return document.RoleFor(c.Permission)
	}
	return document.RoleNone
}

// Authorized is one document visible to a user, with the role it grants.
type Authorized struct {
	Document document.Document
	Role     document.Role
}

// Querier is the slice of the remote store the resolver needs.
type Querier interface {
	QueryByOwner(ctx context.Context, userID string) ([]document.Document, error)
	QueryByCollaborator(ctx context.Context, userID string) ([]document.Document, error)
}

// Resolver lists the documents a user may see.
type Resolver struct {
	store Querier
}

func NewResolver(store Querier) *Resolver {
	return &Resolver{store: store}
}

// ListAuthorized returns the union of owned and shared documents for userID.
// Store errors are returned as-is; records that break the ownership rules
// (owner listed as collaborator, an id returned twice) fail the whole call
// with document.ErrIntegrityViolation.
func (r *Resolver) ListAuthorized(ctx context.Context, userID string) ([]Authorized, error) {
	if userID == "" {
		return nil, document.ErrAuthorization
	}

	var owned, shared []document.Document
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := r.store.QueryByOwner(gctx, userID)
		if err != nil {
			return fmt.Errorf("query owned documents: %w", err)
		}
		owned = docs
		return nil
	})
	g.Go(func() error {
		docs, err := r.store.QueryByCollaborator(gctx, userID)
		if err != nil {
			return fmt.Errorf("query shared documents: %w", err)
		}
		shared = docs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Authorized, 0, len(owned)+len(shared))
	seen := make(map[string]struct{}, len(owned)+len(shared))
	add := func(d document.Document) error {
		if err := d.Validate(); err != nil {
			return err
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("%w: document %s returned for user %s more than once", document.ErrIntegrityViolation, d.ID, userID)
		}
		seen[d.ID] = struct{}{}
		role := ResolveRole(d, userID)
		if !role.CanView() {
			logger.Debugf("permission: skipping %s, user %s has no role", d.ID, userID)
			return nil
		}
		out = append(out, Authorized{Document: d, Role: role})
		return nil
	}
	for _, d := range owned {
		if d.OwnerID != userID {
			return nil, fmt.Errorf("%w: document %s listed for owner %s but owned by %s", document.ErrIntegrityViolation, d.ID, userID, d.OwnerID)
		}
		if err := add(d); err != nil {
			return nil, err
		}
	}
	for _, d := range shared {
		if err := add(d); err != nil {
			return nil, err
		}
	}
	return out, nil
}
