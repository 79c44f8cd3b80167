package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateAndValidateLease(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	l, err := svc.CreateLease(ctx, "sub-1", time.Hour)
	require.NoError(t, err)
	require.Len(t, l.Token, 48)

	got, err := svc.ValidateLease(ctx, l.Token, "sub-1")
	require.NoError(t, err)
	require.Equal(t, "sub-1", got.Sub)

	// a lease is bound to the user that opened it
	_, err = svc.ValidateLease(ctx, l.Token, "sub-2")
	require.ErrorIs(t, err, ErrLeaseNotFound)

	require.NoError(t, svc.DeleteLease(ctx, l.Token))
	_, err = svc.ValidateLease(ctx, l.Token, "sub-1")
	require.ErrorIs(t, err, ErrLeaseNotFound)
}

func TestExpiredLeaseIsRejected(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	l, err := svc.CreateLease(ctx, "sub-1", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = svc.ValidateLease(ctx, l.Token, "sub-1")
	require.ErrorIs(t, err, ErrLeaseNotFound)
}

func TestRenewLeaseSlidesExpiry(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	start := time.Now().UTC()
	now := start
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	l, err := svc.CreateLease(ctx, "sub-1", 10*time.Minute)
	require.NoError(t, err)

	// plenty of time left: nothing is written
	now = start.Add(2 * time.Minute)
	same, err := svc.RenewLease(ctx, l, 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, l.ExpiresAt, same.ExpiresAt)

	now = start.Add(7 * time.Minute)
	renewed, err := svc.RenewLease(ctx, l, 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, now.Add(10*time.Minute), renewed.ExpiresAt)

	stored, err := repo.GetByToken(ctx, l.Token)
	require.NoError(t, err)
	require.Equal(t, renewed.ExpiresAt, stored.ExpiresAt)

	// past the original deadline the renewed lease still validates
	now = start.Add(12 * time.Minute)
	_, err = svc.ValidateLease(ctx, l.Token, "sub-1")
	require.NoError(t, err)
}

func TestRenewDeletedLeaseFails(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	l, err := svc.CreateLease(ctx, "sub-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteLease(ctx, l.Token))

	l.ExpiresAt = time.Now().UTC()
	_, err = svc.RenewLease(ctx, l, time.Minute)
	require.ErrorIs(t, err, ErrLeaseNotFound)
}
