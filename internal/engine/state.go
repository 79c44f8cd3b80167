package engine

import (
	"errors"
	"fmt"

	"github.com/rapidoc/docsync/internal/document"
)

// ErrSessionClosed is returned by every operation after Close.
var ErrSessionClosed = errors.New("sync session closed")

// State is the per-document synchronization state.
type State int

const (
	Unloaded State = iota
	Loading
	Synced
	LocalPending
	Unsubscribed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Synced:
		return "synced"
	case LocalPending:
		return "local_pending"
	case Unsubscribed:
		return "unsubscribed"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText lets clients decode views served by the gateway.
func (s *State) UnmarshalText(b []byte) error {
	for c := Unloaded; c <= Unsubscribed; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown sync state %q", b)
}

// EditorAdapter renders remote-driven content replacements. It is called on
// the session's event loop and must not block.
type EditorAdapter interface {
	RenderContent(documentID, content string)
}

// EditorFunc adapts a plain function to EditorAdapter.
type EditorFunc func(documentID, content string)

func (f EditorFunc) RenderContent(documentID, content string) { f(documentID, content) }

type nopEditor struct{}

func (nopEditor) RenderContent(string, string) {}

// SignalKind classifies out-of-band notifications to the UI.
type SignalKind string

const (
	// SignalDegraded: the document's change feed ended; content is stale but editable.
	SignalDegraded SignalKind = "degraded"
	// SignalWriteFailed: a local edit could not be written; it stays pending.
	SignalWriteFailed SignalKind = "write_failed"
	// SignalOffline: a reload failed; the whole cache is stale.
	SignalOffline SignalKind = "offline"
	// SignalSynced: a pending write reached the store.
	SignalSynced SignalKind = "synced"
)

// Signal is delivered on Session.Signals. DocumentID is empty for
// session-wide signals.
type Signal struct {
	Kind       SignalKind `json:"kind"`
	DocumentID string     `json:"documentId,omitempty"`
	Err        error      `json:"-"`
}

// View is a document as seen by one session.
type View struct {
	Document document.Document `json:"document"`
	Role     document.Role     `json:"role"`
	State    State             `json:"state"`
	Stale    bool              `json:"stale"`
	Preview  string            `json:"preview"`
	// LastError is set while a failed write is still pending.
	LastError string `json:"lastError,omitempty"`
}

type docState struct {
	state        State
	role         document.Role
	ownerID      string
	unsubscribed bool
	stale        bool

	pending  *document.Document
	seq      uint64
	inFlight bool
	held     *document.Document
	lastErr  error
}

func (st *docState) current() State {
	if st.state == LocalPending {
		return LocalPending
	}
	if st.unsubscribed {
		return Unsubscribed
	}
	return st.state
}
