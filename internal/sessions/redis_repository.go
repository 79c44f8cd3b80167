package sessions

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository keeps each lease in a hash under "<prefix><token>" whose
// key expires with the lease, so abandoned sessions clean themselves up.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository creates a Redis-based lease repository. Prefix may be empty.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "docsync:lease:"
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) key(token string) string {
	return r.prefix + token
}

func (r *RedisRepository) Create(ctx context.Context, l *Lease) error {
	key := r.key(l.Token)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, map[string]interface{}{
			"sub":       l.Sub,
			"createdAt": l.CreatedAt.UnixMilli(),
			"expiresAt": l.ExpiresAt.UnixMilli(),
		})
		p.PExpireAt(ctx, key, l.ExpiresAt)
		return nil
	})
	return err
}

func (r *RedisRepository) GetByToken(ctx context.Context, token string) (*Lease, error) {
	fields, err := r.client.HGetAll(ctx, r.key(token)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	created, err := strconv.ParseInt(fields["createdAt"], 10, 64)
	if err != nil {
		return nil, err
	}
	expires, err := strconv.ParseInt(fields["expiresAt"], 10, 64)
	if err != nil {
		return nil, err
	}
	l := &Lease{
		Token:     token,
		Sub:       fields["sub"],
		CreatedAt: time.UnixMilli(created).UTC(),
		ExpiresAt: time.UnixMilli(expires).UTC(),
	}
	if l.Expired(time.Now().UTC()) {
		_ = r.client.Del(ctx, r.key(token)).Err()
		return nil, nil
	}
	return l, nil
}

// Touch moves the lease's expiry. The key is watched so a lease deleted
// concurrently is not brought back.
func (r *RedisRepository) Touch(ctx context.Context, token string, expiresAt time.Time) error {
	key := r.key(token)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrLeaseNotFound
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, "expiresAt", expiresAt.UnixMilli())
			p.PExpireAt(ctx, key, expiresAt)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// deleted or renewed by another request meanwhile
		return ErrLeaseNotFound
	}
	return err
}

func (r *RedisRepository) DeleteByToken(ctx context.Context, token string) error {
	return r.client.Del(ctx, r.key(token)).Err()
}
