package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rapidoc/docsync/internal/document"
	"github.com/rapidoc/docsync/internal/permission"
	"github.com/rapidoc/docsync/pkg/logger"
	"github.com/rapidoc/docsync/pkg/metrics"
)

// errRevoked marks a document whose access was withdrawn or which vanished
// from its owner's record while subscribed.
var errRevoked = fmt.Errorf("%w: access revoked or document removed", document.ErrAuthorization)

// LoadAll rebuilds the cache from every document the session's user owns or
// collaborates on. Cached documents that are no longer authorized are
// evicted. On a store failure the cache is kept but marked stale.
func (s *Session) LoadAll(ctx context.Context) ([]View, error) {
	// only documents cached before the query started can be judged by its
	// result; anything created meanwhile is newer than the answer
	var before map[string]struct{}
	if err := s.do(ctx, func() {
		before = make(map[string]struct{}, len(s.docs))
		for id, st := range s.docs {
			before[id] = struct{}{}
			if st.state == Synced {
				st.state = Loading
			}
		}
	}); err != nil {
		return nil, err
	}

	qctx, cancel := s.engine.storeCtx(ctx)
	auth, err := s.engine.resolver.ListAuthorized(qctx, s.identity.UserID)
	cancel()

	var views []View
	applyCtx := context.WithoutCancel(ctx)
	if err != nil {
		integrity := errors.Is(err, document.ErrIntegrityViolation)
		if integrity {
			logger.Errorf("sync: integrity violation loading documents for %s: %v", s.identity.UserID, err)
		} else {
			logger.Warnf("sync: loading documents for %s failed: %v", s.identity.UserID, err)
			err = unavailable(err)
		}
		if derr := s.do(applyCtx, func() {
			s.restoreLoading()
			if !integrity {
				s.offline = true
				s.signal(Signal{Kind: SignalOffline, Err: err})
			}
		}); derr != nil {
			return nil, derr
		}
		return nil, err
	}

	err = s.do(applyCtx, func() {
		if s.closed {
			return
		}
		s.offline = false
		keep := make(map[string]struct{}, len(auth))
		for _, a := range auth {
			keep[a.Document.ID] = struct{}{}
			s.merge(a.Document, a.Role)
		}
		for id := range before {
			if _, ok := keep[id]; ok {
				continue
			}
			if _, tracked := s.docs[id]; tracked {
				s.evict(id)
			}
		}
		s.restoreLoading()
		views = s.views("")
	})
	return views, err
}

func (s *Session) restoreLoading() {
	for _, st := range s.docs {
		if st.state == Loading {
			st.state = Synced
		}
	}
}

// merge folds an authoritative snapshot of d into the session.
func (s *Session) merge(d document.Document, role document.Role) {
	st := s.track(d.ID)
	st.role = role
	st.ownerID = d.OwnerID
	if st.state == Unloaded || st.state == Loading {
		st.state = Synced
	}
	st.stale = st.unsubscribed
	s.apply(st, d)
}

// apply reconciles one inbound snapshot with the cache. Snapshots that are
// not strictly newer are dropped. While a local write is pending the newest
// inbound snapshot is held until the write settles.
func (s *Session) apply(st *docState, d document.Document) {
	cur, had := s.cache.Get(d.ID)
	if had && !d.LastModified.After(cur.LastModified) {
		if d.LastModified.Before(cur.LastModified) {
			metrics.StaleSnapshots.Inc()
			logger.Debugf("sync: dropped stale snapshot of %s (%s < %s)", d.ID, d.LastModified, cur.LastModified)
		}
		return
	}
	if st.state == LocalPending {
		if st.held == nil || d.LastModified.After(st.held.LastModified) {
			held := d.Clone()
			st.held = &held
		}
		return
	}
	s.cache.Upsert(d)
	if had && cur.Content != d.Content {
		s.render(d)
	}
}

// Subscribe opens (or joins) the change feed for id's owner record. The
// document must already be cached.
func (s *Session) Subscribe(ctx context.Context, id string) error {
	var (
		ownerID string
		gen     uint64
		open    bool
		lookup  error
	)
	if err := s.do(ctx, func() {
		st, ok := s.docs[id]
		if !ok {
			lookup = document.ErrNotFound
			return
		}
		ownerID = st.ownerID
		st.unsubscribed = false
		st.stale = s.offline
		if sub, ok := s.subs[ownerID]; ok {
			sub.docs[id] = struct{}{}
			return
		}
		s.nextGen++
		gen = s.nextGen
		s.subs[ownerID] = &ownerSub{gen: gen, docs: map[string]struct{}{id: {}}}
		open = true
	}); err != nil {
		return err
	}
	if lookup != nil || !open {
		return lookup
	}

	sctx, cancel := s.engine.storeCtx(ctx)
	unsub, err := s.engine.store.Subscribe(sctx, ownerID, func(docs []document.Document, ferr error) {
		s.post(func() { s.onSnapshot(ownerID, gen, docs, ferr) })
	})
	cancel()
	if err != nil {
		err = unavailable(err)
		logger.Warnf("sync: subscribe %s for %s failed: %v", ownerID, s.identity.UserID, err)
	}

	derr := s.do(context.WithoutCancel(ctx), func() {
		sub, ok := s.subs[ownerID]
		current := ok && sub.gen == gen
		if err != nil {
			if current {
				s.degrade(ownerID, sub, err)
			}
			return
		}
		if !current {
			go unsub()
			return
		}
		sub.cancel = unsub
		metrics.ActiveSubscriptions.Inc()
	})
	if derr != nil {
		if unsub != nil {
			unsub()
		}
		return derr
	}
	return err
}

// Unsubscribe stops listening for changes to id. The cached copy stays
// readable and editable but is no longer kept fresh.
func (s *Session) Unsubscribe(ctx context.Context, id string) error {
	var lookup error
	if err := s.do(ctx, func() {
		st, ok := s.docs[id]
		if !ok {
			lookup = document.ErrNotFound
			return
		}
		s.detach(st.ownerID, id)
		st.unsubscribed = true
		st.stale = true
	}); err != nil {
		return err
	}
	return lookup
}

// onSnapshot handles one delivery from the owner feed identified by gen.
func (s *Session) onSnapshot(ownerID string, gen uint64, docs []document.Document, err error) {
	if s.closed {
		return
	}
	sub, ok := s.subs[ownerID]
	if !ok || sub.gen != gen {
		return
	}
	if err != nil {
		s.degrade(ownerID, sub, err)
		return
	}
	if verr := document.ValidateSet(ownerID, docs); verr != nil {
		logger.Errorf("sync: rejecting snapshot of %s: %v", ownerID, verr)
		s.degrade(ownerID, sub, verr)
		return
	}

	present := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		present[d.ID] = struct{}{}
		role := permission.ResolveRole(d, s.identity.UserID)
		st, tracked := s.docs[d.ID]
		if !role.CanView() {
			if tracked {
				s.revoke(d.ID, sub)
			}
			continue
		}
		if !tracked {
			st = s.track(d.ID)
			st.state = Synced
		}
		st.role = role
		st.ownerID = ownerID
		s.apply(st, d)
	}
	for id, st := range s.docs {
		if st.ownerID != ownerID {
			continue
		}
		if _, ok := present[id]; !ok {
			s.revoke(id, sub)
		}
	}
}

// revoke handles a document that disappeared from the user's reach. A
// subscribed document degrades so the editor can keep showing it; an already
// degraded one is left alone and any other cached copy is evicted.
func (s *Session) revoke(id string, sub *ownerSub) {
	st := s.docs[id]
	if _, subscribed := sub.docs[id]; !subscribed {
		if !st.unsubscribed {
			s.evict(id)
		}
		return
	}
	st.role = document.RoleNone
	s.dropPending(st)
	s.detach(st.ownerID, id)
	st.unsubscribed = true
	st.stale = true
	metrics.DegradedSubscriptions.Inc()
	logger.Infof("sync: %s lost access to %s", s.identity.UserID, id)
	s.signal(Signal{Kind: SignalDegraded, DocumentID: id, Err: errRevoked})
}

// degrade moves every document fed by sub to Unsubscribed after the feed
// failed. Cached content is kept.
func (s *Session) degrade(ownerID string, sub *ownerSub, err error) {
	delete(s.subs, ownerID)
	go sub.release()
	logger.Warnf("sync: subscription to %s for %s degraded: %v", ownerID, s.identity.UserID, err)
	for id := range sub.docs {
		st, ok := s.docs[id]
		if !ok {
			continue
		}
		st.unsubscribed = true
		st.stale = true
		metrics.DegradedSubscriptions.Inc()
		s.signal(Signal{Kind: SignalDegraded, DocumentID: id, Err: err})
	}
}
