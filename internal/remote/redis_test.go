package remote

import (
	"context"
	"sync"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/rapidoc/docsync/internal/document"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *mr.Miniredis) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:docs:"), m
}

func TestRedisStoreGetPut(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "alice")
	require.ErrorIs(t, err, document.ErrNotFound)

	d := newDoc(t, "a1", "alice")
	d.Content = "hello"
	require.NoError(t, s.Put(ctx, "alice", []document.Document{d}))

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "hello", got[0].Content)
	require.True(t, d.LastModified.Equal(got[0].LastModified))

	owned, err := s.QueryByOwner(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, owned)
}

func TestRedisStoreCollaboratorIndex(t *testing.T) {
	s, m := newRedisStore(t)
	ctx := context.Background()

	shared := newDoc(t, "a1", "alice", document.Collaborator{ID: "bob", Permission: document.PermissionRead})
	private := newDoc(t, "a2", "alice")
	require.NoError(t, s.Put(ctx, "alice", []document.Document{shared, private}))

	got, err := s.QueryByCollaborator(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "a1", got[0].ID)

	members, err := m.Members("test:docs:collab:bob")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, members)

	// revoking bob removes the index entry
	shared.Collaborators = nil
	require.NoError(t, s.Put(ctx, "alice", []document.Document{shared, private}))
	got, err = s.QueryByCollaborator(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, got)
	require.False(t, m.Exists("test:docs:collab:bob"))
}

func TestRedisStoreSubscribe(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	got := make(chan []document.Document, 4)
	unsub, err := s.Subscribe(ctx, "alice", func(docs []document.Document, err error) {
		if err == nil {
			got <- docs
		}
	})
	require.NoError(t, err)

	d := newDoc(t, "a1", "alice")
	d.Content = "pushed"
	require.NoError(t, s.Put(ctx, "alice", []document.Document{d}))

	select {
	case docs := <-got:
		require.Len(t, docs, 1)
		require.Equal(t, "pushed", docs[0].Content)
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification received")
	}

	unsub()
	unsub()
}

func TestRedisStoreUnsubscribeIsQuiet(t *testing.T) {
	s, _ := newRedisStore(t)
	errs := make(chan error, 1)
	unsub, err := s.Subscribe(context.Background(), "alice", func(_ []document.Document, err error) {
		if err != nil {
			errs <- err
		}
	})
	require.NoError(t, err)
	unsub()

	select {
	case err := <-errs:
		t.Fatalf("unexpected error after unsubscribe: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}

// pipelineRecorder records the command names of every pipeline sent.
type pipelineRecorder struct {
	mu        sync.Mutex
	pipelines [][]string
}

func (p *pipelineRecorder) DialHook(next redis.DialHook) redis.DialHook { return next }

func (p *pipelineRecorder) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (p *pipelineRecorder) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		names := make([]string, 0, len(cmds))
		for _, c := range cmds {
			names = append(names, c.Name())
		}
		p.mu.Lock()
		p.pipelines = append(p.pipelines, names)
		p.mu.Unlock()
		return next(ctx, cmds)
	}
}

func TestRedisStorePutPublishesInsideTransaction(t *testing.T) {
	s, m := newRedisStore(t)
	rec := &pipelineRecorder{}
	s.client.AddHook(rec)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "alice", []document.Document{newDoc(t, "a1", "alice")}))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.pipelines, 1)
	require.Equal(t, "multi", rec.pipelines[0][0])
	require.Contains(t, rec.pipelines[0], "set")
	require.Contains(t, rec.pipelines[0], "publish")
	require.Equal(t, "exec", rec.pipelines[0][len(rec.pipelines[0])-1])
	require.True(t, m.Exists("test:docs:owner:alice"))
}
