package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/rapidoc/docsync/internal/remote"
	"github.com/rapidoc/docsync/pkg/logger"
)

// ErrNoSubject is returned when claims carry no `sub`.
var ErrNoSubject = errors.New("claims have no subject")

// Service records profiles and makes sure every user has a document record
// to own documents in.
type Service struct {
	repo  Repository
	store remote.Store
}

func NewService(r Repository, store remote.Store) *Service {
	return &Service{repo: r, store: store}
}

// UpsertFromClaims creates or updates the profile for the verified claims and
// seeds an empty document set the first time the user is seen.
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*User, error) {
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	if name == "" {
		name, _ = claims["preferred_username"].(string)
	}
	if sub == "" {
		return nil, ErrNoSubject
	}
	u, err := s.repo.UpsertBySub(ctx, &User{Sub: sub, Email: email, Name: name})
	if err != nil {
		return nil, fmt.Errorf("upsert user %s: %w", sub, err)
	}
	if s.store != nil {
		if err := remote.EnsureOwner(ctx, s.store, sub); err != nil {
			logger.Warnf("users: could not seed document record for %s: %v", sub, err)
			return u, fmt.Errorf("seed document record for %s: %w", sub, err)
		}
	}
	return u, nil
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*User, error) {
	return s.repo.GetBySub(ctx, sub)
}
