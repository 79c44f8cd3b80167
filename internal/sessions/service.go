package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ErrLeaseNotFound is returned for unknown, expired or foreign leases.
var ErrLeaseNotFound = errors.New("sync session not found")

// Service wraps repository operations with lease rules.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(r Repository) *Service { return &Service{repo: r, now: time.Now} }

// CreateLease stores a new lease for sub and returns it.
func (s *Service) CreateLease(ctx context.Context, sub string, ttl time.Duration) (*Lease, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	l := &Lease{
		Token:     hex.EncodeToString(b),
		Sub:       sub,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// ValidateLease returns the lease if token is live and was issued to sub.
func (s *Service) ValidateLease(ctx context.Context, token, sub string) (*Lease, error) {
	l, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if l == nil || l.Sub != sub {
		return nil, ErrLeaseNotFound
	}
	if l.Expired(s.now().UTC()) {
		// cleanup expired lease
		_ = s.repo.DeleteByToken(ctx, token)
		return nil, ErrLeaseNotFound
	}
	return l, nil
}

// RenewLease slides l's expiry to now+ttl once less than half of ttl is
// left, so active sessions stay open while idle ones lapse.
func (s *Service) RenewLease(ctx context.Context, l *Lease, ttl time.Duration) (*Lease, error) {
	now := s.now().UTC()
	if l.ExpiresAt.Sub(now) >= ttl/2 {
		return l, nil
	}
	exp := now.Add(ttl)
	if err := s.repo.Touch(ctx, l.Token, exp); err != nil {
		return nil, err
	}
	renewed := *l
	renewed.ExpiresAt = exp
	return &renewed, nil
}

func (s *Service) DeleteLease(ctx context.Context, token string) error {
	return s.repo.DeleteByToken(ctx, token)
}
