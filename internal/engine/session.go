package engine

import (
	"context"
	"sync"

	"github.com/rapidoc/docsync/internal/cache"
	"github.com/rapidoc/docsync/internal/document"
	"github.com/rapidoc/docsync/internal/remote"
	"github.com/rapidoc/docsync/pkg/logger"
	"github.com/rapidoc/docsync/pkg/metrics"
)

// Session is one user's view of the remote store: a private cache, per
// document sync state and the live subscriptions feeding it. All of that is
// owned by a single event-loop goroutine; public methods and store callbacks
// post closures to it and never touch the state directly.
type Session struct {
	engine   *Engine
	identity Identity
	editor   EditorAdapter

	// loop-owned
	cache   *cache.Cache
	docs    map[string]*docState
	subs    map[string]*ownerSub
	nextGen uint64
	offline bool
	closed  bool

	queue     chan func()
	closing   chan struct{}
	done      chan struct{}
	signals   chan Signal
	closeOnce sync.Once
}

// ownerSub is one store subscription on an owner record, shared by every
// subscribed document of that owner.
type ownerSub struct {
	gen    uint64
	docs   map[string]struct{}
	cancel remote.Unsubscribe
	once   sync.Once
}

func (o *ownerSub) release() {
	if o.cancel == nil {
		return
	}
	o.once.Do(func() {
		o.cancel()
		metrics.ActiveSubscriptions.Dec()
	})
}

func (s *Session) run() {
	defer close(s.done)
	for fn := range s.queue {
		fn()
		if s.closed {
			return
		}
	}
}

// do runs fn on the event loop and waits for it.
func (s *Session) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.queue <- task:
	case <-s.closing:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrSessionClosed
		}
	}
}

// post enqueues fn without waiting. It reports false once teardown started.
func (s *Session) post(fn func()) bool {
	select {
	case <-s.closing:
		return false
	default:
	}
	select {
	case s.queue <- fn:
		return true
	case <-s.closing:
		return false
	}
}

func (s *Session) signal(sig Signal) {
	select {
	case s.signals <- sig:
	default:
		logger.Warnf("sync: signal buffer full for %s, dropping %s on %s", s.identity.UserID, sig.Kind, sig.DocumentID)
	}
}

func (s *Session) render(d document.Document) {
	metrics.Renders.Inc()
	s.editor.RenderContent(d.ID, d.Content)
}

// Identity returns the identity the session was opened with.
func (s *Session) Identity() Identity { return s.identity }

// Signals delivers degraded, offline and write status notifications. The
// channel is closed after Close.
func (s *Session) Signals() <-chan Signal { return s.signals }

// Done is closed once the session's event loop has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close tears the session down: every subscription is released and no
// callback or editor render runs afterwards. It is safe to call repeatedly.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		var subs []*ownerSub
		teardown := func() {
			s.closed = true
			close(s.closing)
			for owner, sub := range s.subs {
				subs = append(subs, sub)
				delete(s.subs, owner)
			}
			for _, st := range s.docs {
				st.unsubscribed = true
			}
		}
		s.queue <- teardown
		<-s.done
		// Released off the loop: store unsubscribes may wait for their
		// delivery goroutine, which may itself be blocked posting to us.
		for _, sub := range subs {
			sub.release()
		}
		close(s.signals)
		metrics.ActiveSessions.Dec()
		logger.Debugf("sync: session closed for %s", s.identity.UserID)
	})
}

// State reports the sync state of id; untracked documents are Unloaded.
func (s *Session) State(ctx context.Context, id string) (State, error) {
	state := Unloaded
	err := s.do(ctx, func() {
		if st, ok := s.docs[id]; ok {
			state = st.current()
		}
	})
	return state, err
}

// Stale reports whether id's cached content may be behind the store.
func (s *Session) Stale(ctx context.Context, id string) (bool, error) {
	var stale bool
	err := s.do(ctx, func() {
		if st, ok := s.docs[id]; ok {
			stale = st.stale || s.offline
		}
	})
	return stale, err
}

// Get returns the cached view of id.
func (s *Session) Get(ctx context.Context, id string) (View, error) {
	var (
		v     View
		found bool
	)
	err := s.do(ctx, func() {
		v, found = s.view(id)
	})
	if err != nil {
		return View{}, err
	}
	if !found {
		return View{}, document.ErrNotFound
	}
	return v, nil
}

// List returns every cached document, most recently modified first.
func (s *Session) List(ctx context.Context) ([]View, error) {
	return s.Search(ctx, "")
}

// Search filters the cache by name or content, case-insensitively.
func (s *Session) Search(ctx context.Context, query string) ([]View, error) {
	var out []View
	err := s.do(ctx, func() {
		out = s.views(query)
	})
	return out, err
}

func (s *Session) view(id string) (View, bool) {
	d, ok := s.cache.Get(id)
	st, tracked := s.docs[id]
	if !ok || !tracked {
		return View{}, false
	}
	v := View{
		Document: d,
		Role:     st.role,
		State:    st.current(),
		Stale:    st.stale || s.offline,
		Preview:  document.Preview(d.Content),
	}
	if st.lastErr != nil {
		v.LastError = st.lastErr.Error()
	}
	return v, true
}

func (s *Session) views(query string) []View {
	docs := s.cache.Search(query)
	out := make([]View, 0, len(docs))
	for _, d := range docs {
		if v, ok := s.view(d.ID); ok {
			out = append(out, v)
		}
	}
	return out
}

func (s *Session) track(id string) *docState {
	st, ok := s.docs[id]
	if !ok {
		st = &docState{state: Unloaded}
		s.docs[id] = st
	}
	return st
}

// evict forgets id entirely, dropping its share of any subscription.
func (s *Session) evict(id string) {
	st, ok := s.docs[id]
	if !ok {
		return
	}
	s.detach(st.ownerID, id)
	s.cache.Delete(id)
	delete(s.docs, id)
	logger.Debugf("sync: evicted %s from %s's cache", id, s.identity.UserID)
}

// detach removes id from its owner subscription and releases the
// subscription once no document uses it.
func (s *Session) detach(ownerID, id string) {
	sub, ok := s.subs[ownerID]
	if !ok {
		return
	}
	delete(sub.docs, id)
	if len(sub.docs) == 0 {
		delete(s.subs, ownerID)
		go sub.release()
	}
}
