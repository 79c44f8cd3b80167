package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/rapidoc/docsync/internal/document"
)

// MemoryStore is an in-process Store used for development and tests. Change
// notifications are delivered synchronously after the write lock is released.
// Fault hooks (SetOffline, FailWrites, Emit, Break) let tests simulate an
// unreliable remote.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]document.Document
	subs    map[string]map[int]Callback
	nextSub int

	offline    bool
	failWrites error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]document.Document),
		subs:    make(map[string]map[int]Callback),
	}
}

func (m *MemoryStore) Get(ctx context.Context, ownerID string) ([]document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	docs, ok := m.records[ownerID]
	if !ok {
		return nil, document.ErrNotFound
	}
	return cloneAll(docs), nil
}

func (m *MemoryStore) Put(ctx context.Context, ownerID string, docs []document.Document) error {
	if err := document.ValidateSet(ownerID, docs); err != nil {
		return err
	}
	m.mu.Lock()
	if err := m.check(ctx); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.failWrites != nil {
		err := m.failWrites
		m.mu.Unlock()
		return err
	}
	m.records[ownerID] = cloneAll(docs)
	fns := m.subscribers(ownerID)
	m.mu.Unlock()

	for _, fn := range fns {
		fn(cloneAll(docs), nil)
	}
	return nil
}

func (m *MemoryStore) QueryByCollaborator(ctx context.Context, userID string) ([]document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	out := []document.Document{}
	for _, docs := range m.records {
		out = append(out, withCollaborator(docs, userID)...)
	}
	return out, nil
}

func (m *MemoryStore) QueryByOwner(ctx context.Context, userID string) ([]document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	return cloneAll(m.records[userID]), nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, ownerID string, fn Callback) (Unsubscribe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	id := m.nextSub
	m.nextSub++
	if m.subs[ownerID] == nil {
		m.subs[ownerID] = make(map[int]Callback)
	}
	m.subs[ownerID][id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[ownerID], id)
			m.mu.Unlock()
		})
	}, nil
}

// Subscribers reports how many live subscriptions exist for ownerID.
func (m *MemoryStore) Subscribers(ownerID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[ownerID])
}

// SetOffline makes every call fail with a transport error until reset.
func (m *MemoryStore) SetOffline(offline bool) {
	m.mu.Lock()
	m.offline = offline
	m.mu.Unlock()
}

// FailWrites makes Put return err until called again with nil.
func (m *MemoryStore) FailWrites(err error) {
	m.mu.Lock()
	m.failWrites = err
	m.mu.Unlock()
}

// Emit delivers docs to ownerID's subscribers without touching the stored
// record, simulating a delayed or reordered notification.
func (m *MemoryStore) Emit(ownerID string, docs []document.Document) {
	m.mu.RLock()
	fns := m.subscribers(ownerID)
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(cloneAll(docs), nil)
	}
}

// Break fails every subscription on ownerID with err and drops them.
func (m *MemoryStore) Break(ownerID string, err error) {
	m.mu.Lock()
	fns := m.subscribers(ownerID)
	delete(m.subs, ownerID)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(nil, err)
	}
}

func (m *MemoryStore) subscribers(ownerID string) []Callback {
	fns := make([]Callback, 0, len(m.subs[ownerID]))
	for _, fn := range m.subs[ownerID] {
		fns = append(fns, fn)
	}
	return fns
}

func (m *MemoryStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.offline {
		return fmt.Errorf("memory store: connection refused")
	}
	return nil
}
