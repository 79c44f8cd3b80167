package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rapidoc/docsync/internal/document"
	"github.com/rapidoc/docsync/pkg/logger"
	"github.com/rapidoc/docsync/pkg/metrics"
)

// ApplyLocalEdit replaces id's content. The cache is updated optimistically
// before the write is issued. When several edits land while a write is in
// flight only the latest is written; callers whose edit was superseded
// return nil immediately and the first caller reports the final outcome.
func (s *Session) ApplyLocalEdit(ctx context.Context, id, content string) error {
	return s.mutate(ctx, id, func(d *document.Document, role document.Role) error {
		if !role.CanWrite() {
			return document.ErrReadOnly
		}
		d.Content = content
		return nil
	})
}

// OnContentChange is the editor-facing entry point for local typing.
func (s *Session) OnContentChange(ctx context.Context, id, content string) error {
	return s.ApplyLocalEdit(ctx, id, content)
}

// Rename changes id's display name.
func (s *Session) Rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	return s.mutate(ctx, id, func(d *document.Document, role document.Role) error {
		if !role.CanWrite() {
			return document.ErrReadOnly
		}
		if name == "" {
			return fmt.Errorf("%w: name must not be empty", document.ErrInvalidDocument)
		}
		d.Name = name
		return nil
	})
}

// SetCollaborators replaces id's sharing list. Only the owner may share.
func (s *Session) SetCollaborators(ctx context.Context, id string, collaborators []document.Collaborator) error {
	return s.mutate(ctx, id, func(d *document.Document, role document.Role) error {
		if role != document.RoleOwner {
			return fmt.Errorf("%w: only the owner may change collaborators", document.ErrAuthorization)
		}
		if err := document.ValidateCollaborators(d.OwnerID, collaborators); err != nil {
			return err
		}
		d.Collaborators = append([]document.Collaborator(nil), collaborators...)
		return nil
	})
}

// Retry re-issues id's pending write, if any, after a failure.
func (s *Session) Retry(ctx context.Context, id string) error {
	var (
		start  bool
		lookup error
	)
	if err := s.do(ctx, func() {
		st, ok := s.docs[id]
		if !ok {
			lookup = document.ErrNotFound
			return
		}
		if !st.role.CanWrite() {
			s.dropPending(st)
			lookup = errRevoked
			if st.role.CanView() {
				lookup = document.ErrReadOnly
			}
			return
		}
		if st.pending == nil || st.inFlight {
			return
		}
		st.inFlight = true
		start = true
	}); err != nil {
		return err
	}
	if lookup != nil || !start {
		return lookup
	}
	return s.flush(ctx, id)
}

// CreateDocument adds an empty document owned by the session's user. It is
// cached only after the store accepted it.
func (s *Session) CreateDocument(ctx context.Context, name string) (document.Document, error) {
	select {
	case <-s.closing:
		return document.Document{}, ErrSessionClosed
	default:
	}
	d, err := document.New(s.engine.opts.NewID(), s.identity.UserID, name, s.engine.now())
	if err != nil {
		return document.Document{}, err
	}
	if err := s.engine.write(ctx, d); err != nil {
		metrics.RemoteWrites.WithLabelValues("failed").Inc()
		logger.Warnf("sync: creating %q for %s failed: %v", d.Name, s.identity.UserID, err)
		return document.Document{}, err
	}
	metrics.RemoteWrites.WithLabelValues("ok").Inc()
	err = s.do(context.WithoutCancel(ctx), func() {
		st := s.track(d.ID)
		st.role = document.RoleOwner
		st.ownerID = d.OwnerID
		if st.state == Unloaded {
			st.state = Synced
		}
		s.apply(st, d)
	})
	return d, err
}

// mutate applies change to a copy of the cached document, stamps it and
// makes it the pending write for id.
func (s *Session) mutate(ctx context.Context, id string, change func(*document.Document, document.Role) error) error {
	var (
		start    bool
		rejected error
	)
	if err := s.do(ctx, func() {
		st, tracked := s.docs[id]
		cur, cached := s.cache.Get(id)
		if !tracked || !cached {
			rejected = document.ErrNotFound
			return
		}
		next := cur.Clone()
		if err := change(&next, st.role); err != nil {
			rejected = err
			return
		}
		next.LastModified = s.engine.now()
		if !next.LastModified.After(cur.LastModified) {
			next.LastModified = cur.LastModified.Add(time.Millisecond)
		}
		if err := next.Validate(); err != nil {
			rejected = err
			return
		}
		s.cache.Upsert(next)
		metrics.LocalEdits.Inc()
		st.pending = &next
		st.seq++
		st.state = LocalPending
		if !st.inFlight {
			st.inFlight = true
			start = true
		}
	}); err != nil {
		return err
	}
	if rejected != nil || !start {
		return rejected
	}
	return s.flush(ctx, id)
}

// flush writes id's pending candidate until no newer one is waiting.
func (s *Session) flush(ctx context.Context, id string) error {
	loopCtx := context.WithoutCancel(ctx)
	for {
		var (
			next    document.Document
			seq     uint64
			ok      bool
			revoked bool
		)
		if err := s.do(loopCtx, func() {
			st, tracked := s.docs[id]
			if !tracked {
				return
			}
			if !st.role.CanWrite() {
				s.dropPending(st)
				revoked = true
				return
			}
			if st.pending == nil {
				st.inFlight = false
				return
			}
			next, seq, ok = st.pending.Clone(), st.seq, true
		}); err != nil {
			return err
		}
		if revoked {
			return errRevoked
		}
		if !ok {
			return nil
		}

		werr := s.engine.write(ctx, next)
		var again bool
		if err := s.do(loopCtx, func() { again = s.settle(id, seq, next, werr) }); err != nil {
			return err
		}
		if werr != nil {
			return werr
		}
		if !again {
			return nil
		}
	}
}

// settle records the outcome of writing candidate seq of id and reports
// whether a newer candidate needs writing.
func (s *Session) settle(id string, seq uint64, written document.Document, werr error) bool {
	st, tracked := s.docs[id]
	if werr != nil {
		metrics.RemoteWrites.WithLabelValues("failed").Inc()
		logger.Warnf("sync: write of %s for %s failed: %v", id, s.identity.UserID, werr)
		if !tracked {
			return false
		}
		st.inFlight = false
		if st.pending == nil {
			// discarded after losing write access
			return false
		}
		st.lastErr = werr
		s.signal(Signal{Kind: SignalWriteFailed, DocumentID: id, Err: werr})
		return false
	}
	metrics.RemoteWrites.WithLabelValues("ok").Inc()
	if !tracked {
		return false
	}
	if st.seq != seq {
		return true
	}
	recovered := st.lastErr != nil
	st.pending = nil
	st.inFlight = false
	st.lastErr = nil
	st.state = Synced
	if held := st.held; held != nil {
		st.held = nil
		if held.LastModified.After(written.LastModified) {
			s.apply(st, *held)
		}
	}
	if recovered {
		s.signal(Signal{Kind: SignalSynced, DocumentID: id})
	}
	return false
}

// dropPending discards a local candidate that may no longer be written.
func (s *Session) dropPending(st *docState) {
	if st.pending != nil {
		logger.Infof("sync: discarding pending write by %s after losing write access", s.identity.UserID)
	}
	st.pending = nil
	st.held = nil
	st.inFlight = false
	st.lastErr = nil
	if st.state == LocalPending {
		st.state = Synced
	}
}
