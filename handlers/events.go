package handlers

import (
	"sync"

	"github.com/rapidoc/docsync/internal/engine"
	"github.com/rapidoc/docsync/pkg/logger"
)

// Event is one server-sent event on /sessions/:token/events.
type Event struct {
	Type       string `json:"type"`
	DocumentID string `json:"documentId,omitempty"`
	Content    string `json:"content,omitempty"`
	Error      string `json:"error,omitempty"`
}

const eventRender = "render"

// hub fans a session's renders and signals out to its event streams. It is
// the session's EditorAdapter, so publish must never block.
type hub struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	closed bool
}

func newHub() *hub {
	return &hub{subs: map[int]chan Event{}}
}

func (h *hub) RenderContent(documentID, content string) {
	h.publish(Event{Type: eventRender, DocumentID: documentID, Content: content})
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			logger.Warnf("events: stream %d is full, dropping %s for %s", id, ev.Type, ev.DocumentID)
		}
	}
}

// subscribe returns a stream and its cancel func. The stream is closed when
// the hub closes.
func (h *hub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Event, 32)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// pump forwards engine signals until the session closes its channel.
func (h *hub) pump(signals <-chan engine.Signal) {
	for sig := range signals {
		ev := Event{Type: string(sig.Kind), DocumentID: sig.DocumentID}
		if sig.Err != nil {
			ev.Error = sig.Err.Error()
		}
		h.publish(ev)
	}
	h.close()
}
