package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rapidoc/docsync/internal/document"
	"github.com/rapidoc/docsync/internal/engine"
	"github.com/rapidoc/docsync/internal/remote"
	"github.com/rapidoc/docsync/internal/sessions"
	"github.com/rapidoc/docsync/internal/tokens"
	"github.com/rapidoc/docsync/internal/users"
	"github.com/rapidoc/docsync/pkg/middleware"
	"github.com/stretchr/testify/require"
)

type syncFixture struct {
	t      *testing.T
	store  *remote.MemoryStore
	h      *SyncHandler
	router *gin.Engine
}

func newSyncFixture(t *testing.T, ttl time.Duration) *syncFixture {
	t.Helper()
	store := remote.NewMemoryStore()
	h := NewSyncHandler(
		engine.New(store, engine.Options{StoreTimeout: time.Second}),
		sessions.NewService(sessions.NewMemoryRepository()),
		users.NewService(users.NewMemoryRepository(), store),
		ttl,
	)
	t.Cleanup(h.Shutdown)
	r := gin.New()
	h.Register(r.Group("/api/v1", middleware.AuthMiddleware(tokens.NewVerifier(testSecret))))
	return &syncFixture{t: t, store: store, h: h, router: r}
}

func (f *syncFixture) do(method, path, sub, body string) *httptest.ResponseRecorder {
	f.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+bearer(f.t, sub))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

type openResponse struct {
	Token     string        `json:"token"`
	Documents []engine.View `json:"documents"`
	Stale     bool          `json:"stale"`
}

func (f *syncFixture) open(sub string) openResponse {
	f.t.Helper()
	w := f.do(http.MethodPost, "/api/v1/sessions", sub, "")
	require.Equal(f.t, http.StatusCreated, w.Code, w.Body.String())
	var got openResponse
	require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &got))
	require.NotEmpty(f.t, got.Token)
	return got
}

func (f *syncFixture) seed(owner string, docs ...document.Document) {
	f.t.Helper()
	require.NoError(f.t, f.store.Put(context.Background(), owner, docs))
}

func sharedDoc(id, owner string, at time.Time, collabs ...document.Collaborator) document.Document {
	return document.Document{ID: id, Name: "Doc " + id, OwnerID: owner, Collaborators: collabs, LastModified: at}
}

func TestOpenLoadsOwnedAndSharedDocuments(t *testing.T) {
	f := newSyncFixture(t, time.Hour)
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f.seed("alice", sharedDoc("a1", "alice", at))
	f.seed("bob", sharedDoc("b1", "bob", at, document.Collaborator{ID: "alice", Permission: document.PermissionRead}))

	got := f.open("alice")
	require.False(t, got.Stale)
	require.Len(t, got.Documents, 2)
	roles := map[string]document.Role{}
	for _, v := range got.Documents {
		roles[v.Document.ID] = v.Role
		require.Equal(t, engine.Synced, v.State)
	}
	require.Equal(t, document.RoleOwner, roles["a1"])
	require.Equal(t, document.RoleRead, roles["b1"])
}

func TestCreateEditAndRename(t *testing.T) {
	f := newSyncFixture(t, time.Hour)
	s := f.open("alice")
	base := "/api/v1/sessions/" + s.Token

	w := f.do(http.MethodPost, base+"/documents", "alice", `{"name":"Notes"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created document.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, "alice", created.OwnerID)

	w = f.do(http.MethodPut, base+"/documents/"+created.ID+"/content", "alice", `{"content":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var v engine.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	require.Equal(t, "hello", v.Document.Content)
	require.Equal(t, engine.Synced, v.State)

	w = f.do(http.MethodPatch, base+"/documents/"+created.ID, "alice", `{"name":"  Plans "}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	docs, err := f.store.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "hello", docs[0].Content)
	require.Equal(t, "Plans", docs[0].Name)

	w = f.do(http.MethodGet, base+"/documents?q=plan", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	var found []engine.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &found))
	require.Len(t, found, 1)
}

func TestEditErrorsMapToStatus(t *testing.T) {
	f := newSyncFixture(t, time.Hour)
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f.seed("bob", sharedDoc("b1", "bob", at, document.Collaborator{ID: "alice", Permission: document.PermissionComment}))
	base := "/api/v1/sessions/" + f.open("alice").Token

	w := f.do(http.MethodPut, base+"/documents/b1/content", "alice", `{"content":"nope"}`)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = f.do(http.MethodPut, base+"/documents/missing/content", "alice", `{"content":"x"}`)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPut, base+"/documents/b1/collaborators", "alice", `{"collaborators":[]}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPut, base+"/documents/b1/content", "alice", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFailedWriteReturnsStalePendingView(t *testing.T) {
	f := newSyncFixture(t, time.Hour)
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f.seed("alice", sharedDoc("a1", "alice", at))
	base := "/api/v1/sessions/" + f.open("alice").Token

	f.store.FailWrites(errors.New("quota exceeded"))
	w := f.do(http.MethodPut, base+"/documents/a1/content", "alice", `{"content":"draft"}`)
	require.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	var body struct {
		Stale    bool        `json:"stale"`
		Document engine.View `json:"document"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.True(t, body.Stale)
	require.Equal(t, engine.LocalPending, body.Document.State)
	require.Equal(t, "draft", body.Document.Document.Content)

	f.store.FailWrites(nil)
	w = f.do(http.MethodPost, base+"/documents/a1/retry", "alice", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	docs, err := f.store.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "draft", docs[0].Content)
}

func TestOpenWhileOfflineIsStale(t *testing.T) {
	f := newSyncFixture(t, time.Hour)
	f.seed("alice")
	f.store.SetOffline(true)

	w := f.do(http.MethodPost, "/api/v1/sessions", "alice", "")
	// user bootstrap reaches the store first
	require.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"stale":true`)

	f.store.SetOffline(false)
	base := "/api/v1/sessions/" + f.open("alice").Token
	f.store.SetOffline(true)
	w = f.do(http.MethodPost, base+"/reload", "alice", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"stale":true`)
}

func TestSessionBelongsToItsOpener(t *testing.T) {
	f := newSyncFixture(t, time.Hour)
	s := f.open("alice")
	base := "/api/v1/sessions/" + s.Token

	w := f.do(http.MethodGet, base+"/documents", "mallory", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodDelete, base, "alice", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodGet, base+"/documents", "alice", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSweepClosesExpiredSessions(t *testing.T) {
	f := newSyncFixture(t, time.Minute)
	f.open("alice")
	f.open("bob")

	require.Equal(t, 0, f.h.Sweep(time.Now()))
	require.Equal(t, 2, f.h.Sweep(time.Now().Add(2*time.Minute)))
	require.Equal(t, 0, f.h.Sweep(time.Now().Add(2*time.Minute)))
}

func TestEventsStreamRemoteChanges(t *testing.T) {
	f := newSyncFixture(t, time.Hour)
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f.seed("bob", sharedDoc("b1", "bob", at, document.Collaborator{ID: "alice", Permission: document.PermissionRead}))
	s := f.open("alice")
	base := "/api/v1/sessions/" + s.Token

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+base+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bearer(t, "alice"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	w := f.do(http.MethodPost, base+"/documents/b1/subscription", "alice", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	changed := sharedDoc("b1", "bob", at.Add(time.Minute), document.Collaborator{ID: "alice", Permission: document.PermissionRead})
	changed.Content = "from bob"
	f.seed("bob", changed)

	sc := bufio.NewScanner(resp.Body)
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event:") {
			event = strings.TrimPrefix(line, "event:")
		}
		if strings.HasPrefix(line, "data:") {
			data = strings.TrimPrefix(line, "data:")
			break
		}
	}
	require.Equal(t, eventRender, event)
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	require.Equal(t, "b1", ev.DocumentID)
	require.Equal(t, "from bob", ev.Content)
}

func TestHubDropsForFullStreams(t *testing.T) {
	h := newHub()
	stream, cancel := h.subscribe()
	defer cancel()
	for i := 0; i < 40; i++ {
		h.RenderContent("d", "x")
	}
	require.Len(t, stream, 32)

	h.close()
	n := 0
	for range stream {
		n++
	}
	require.Equal(t, 32, n)

	late, _ := h.subscribe()
	_, ok := <-late
	require.False(t, ok)
}
