package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rapidoc/docsync/internal/document"
	"github.com/rapidoc/docsync/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each owner's document set as JSON under "<prefix>owner:<id>",
// a per-user set "<prefix>collab:<id>" of owner ids that list the user as a
// collaborator, and publishes every write on "<prefix>changes:<owner>".
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. Prefix may be empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "docs:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) ownerKey(id string) string   { return r.prefix + "owner:" + id }
func (r *RedisStore) collabKey(id string) string  { return r.prefix + "collab:" + id }
func (r *RedisStore) channel(owner string) string { return r.prefix + "changes:" + owner }

func (r *RedisStore) Get(ctx context.Context, ownerID string) ([]document.Document, error) {
	b, err := r.client.Get(ctx, r.ownerKey(ownerID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, document.ErrNotFound
		}
		return nil, err
	}
	var docs []document.Document
	if err := json.Unmarshal(b, &docs); err != nil {
		return nil, fmt.Errorf("decode owner %s: %w", ownerID, err)
	}
	return docs, nil
}

func (r *RedisStore) Put(ctx context.Context, ownerID string, docs []document.Document) error {
	if err := document.ValidateSet(ownerID, docs); err != nil {
		return err
	}
	if docs == nil {
		docs = []document.Document{}
	}
	b, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	prev, err := r.Get(ctx, ownerID)
	if err != nil && err != document.ErrNotFound {
		return err
	}
	before := document.CollaboratorIDs(prev)
	after := document.CollaboratorIDs(docs)
	keep := make(map[string]struct{}, len(after))
	for _, id := range after {
		keep[id] = struct{}{}
	}

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.ownerKey(ownerID), b, 0)
		for _, id := range before {
			if _, ok := keep[id]; !ok {
				p.SRem(ctx, r.collabKey(id), ownerID)
			}
		}
		for _, id := range after {
			p.SAdd(ctx, r.collabKey(id), ownerID)
		}
		// the notification commits with the record
		p.Publish(ctx, r.channel(ownerID), b)
		return nil
	})
	return err
}

func (r *RedisStore) QueryByCollaborator(ctx context.Context, userID string) ([]document.Document, error) {
	owners, err := r.client.SMembers(ctx, r.collabKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := []document.Document{}
	for _, owner := range owners {
		docs, err := r.Get(ctx, owner)
		if err == document.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, withCollaborator(docs, userID)...)
	}
	return out, nil
}

func (r *RedisStore) QueryByOwner(ctx context.Context, userID string) ([]document.Document, error) {
	docs, err := r.Get(ctx, userID)
	if err == document.ErrNotFound {
		return []document.Document{}, nil
	}
	return docs, err
}

// Subscribe waits for the SUBSCRIBE confirmation before returning so no write
// published afterwards is missed.
func (r *RedisStore) Subscribe(ctx context.Context, ownerID string, fn Callback) (Unsubscribe, error) {
	ps := r.client.Subscribe(ctx, r.channel(ownerID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	var (
		mu      sync.Mutex
		stopped bool
	)
	ch := ps.Channel()
	go func() {
		for msg := range ch {
			var docs []document.Document
			if err := json.Unmarshal([]byte(msg.Payload), &docs); err != nil {
				logger.Warnf("redis store: dropping undecodable change for %s: %v", ownerID, err)
				continue
			}
			fn(docs, nil)
		}
		mu.Lock()
		quiet := stopped
		mu.Unlock()
		if !quiet {
			fn(nil, ErrSubscriptionClosed)
		}
	}()

	return func() {
		mu.Lock()
		if stopped {
			mu.Unlock()
			return
		}
		stopped = true
		mu.Unlock()
		_ = ps.Close()
	}, nil
}
