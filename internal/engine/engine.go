package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rapidoc/docsync/internal/cache"
	"github.com/rapidoc/docsync/internal/document"
	"github.com/rapidoc/docsync/internal/permission"
	"github.com/rapidoc/docsync/internal/remote"
	"github.com/rapidoc/docsync/pkg/logger"
	"github.com/rapidoc/docsync/pkg/metrics"
)

// Identity is the explicit, already-verified caller identity passed into
// every session. An empty UserID is not an established identity.
type Identity struct {
	UserID string
}

func (i Identity) Established() bool { return i.UserID != "" }

// Options tunes an Engine. Zero values pick sensible defaults.
type Options struct {
	// StoreTimeout bounds every remote call; a timeout is treated like any
	// other remote failure.
	StoreTimeout time.Duration
	QueueSize    int
	SignalBuffer int
	Now          func() time.Time
	NewID        func() string
}

// Engine creates sync sessions against one remote store.
type Engine struct {
	store    remote.Store
	resolver *permission.Resolver
	opts     Options
}

func New(store remote.Store, opts Options) *Engine {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.SignalBuffer <= 0 {
		opts.SignalBuffer = 64
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Engine{store: store, resolver: permission.NewResolver(store), opts: opts}
}

// Open starts a session for id. The session owns its cache and event loop
// until Close; nothing is loaded until LoadAll.
func (e *Engine) Open(id Identity, editor EditorAdapter) (*Session, error) {
	if !id.Established() {
		return nil, document.ErrAuthorization
	}
	if editor == nil {
		editor = nopEditor{}
	}
	s := &Session{
		engine:   e,
		identity: id,
		editor:   editor,
		cache:    cache.New(),
		docs:     make(map[string]*docState),
		subs:     make(map[string]*ownerSub),
		queue:    make(chan func(), e.opts.QueueSize),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
		signals:  make(chan Signal, e.opts.SignalBuffer),
	}
	go s.run()
	metrics.ActiveSessions.Inc()
	logger.Debugf("sync: session opened for %s", id.UserID)
	return s, nil
}

func (e *Engine) now() time.Time { return e.opts.Now().UTC() }

func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.StoreTimeout > 0 {
		return context.WithTimeout(ctx, e.opts.StoreTimeout)
	}
	return context.WithCancel(ctx)
}

// unavailable folds transport failures into ErrRemoteUnavailable while
// letting data errors through untouched.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, document.ErrIntegrityViolation) || errors.Is(err, document.ErrInvalidDocument) || errors.Is(err, document.ErrRemoteUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", document.ErrRemoteUnavailable, err)
}

// write replaces d's entry in its owner's record. The record is re-read first
// so other documents in it are preserved, but d itself is overwritten
// wholesale: a concurrent edit to d that this session never saw is lost.
func (e *Engine) write(ctx context.Context, d document.Document) error {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	docs, err := e.store.Get(ctx, d.OwnerID)
	if err != nil && !errors.Is(err, document.ErrNotFound) {
		return unavailable(err)
	}
	return unavailable(e.store.Put(ctx, d.OwnerID, document.Replace(docs, d)))
}
