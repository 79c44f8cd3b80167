package handlers

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rapidoc/docsync/internal/document"
	"github.com/rapidoc/docsync/internal/engine"
	"github.com/rapidoc/docsync/internal/sessions"
	"github.com/rapidoc/docsync/internal/users"
	"github.com/rapidoc/docsync/pkg/logger"
	"github.com/rapidoc/docsync/pkg/middleware"
)

// liveSession is an engine session held open on behalf of an HTTP client.
type liveSession struct {
	token     string
	sub       string
	sess      *engine.Session
	events    *hub
	expiresAt time.Time
}

// SyncHandler exposes sync sessions over HTTP. Each session is identified by
// a lease token and lives on the replica that opened it.
type SyncHandler struct {
	engine *engine.Engine
	leases *sessions.Service
	users  *users.Service
	ttl    time.Duration

	mu   sync.Mutex
	live map[string]*liveSession
}

func NewSyncHandler(e *engine.Engine, leases *sessions.Service, u *users.Service, ttl time.Duration) *SyncHandler {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &SyncHandler{engine: e, leases: leases, users: u, ttl: ttl, live: map[string]*liveSession{}}
}

// Register mounts the session routes; rg must already run AuthMiddleware.
func (h *SyncHandler) Register(rg *gin.RouterGroup) {
	s := rg.Group("/sessions")
	s.POST("", h.Open)

	t := s.Group("/:token", h.lease)
	t.DELETE("", h.Close)
	t.POST("/reload", h.Reload)
	t.GET("/events", h.Events)
	t.GET("/documents", h.List)
	t.POST("/documents", h.Create)
	t.GET("/documents/:id", h.Get)
	t.PATCH("/documents/:id", h.Rename)
	t.PUT("/documents/:id/content", h.Edit)
	t.PUT("/documents/:id/collaborators", h.Share)
	t.POST("/documents/:id/subscription", h.Subscribe)
	t.DELETE("/documents/:id/subscription", h.Unsubscribe)
	t.POST("/documents/:id/retry", h.Retry)
}

// Open bootstraps the caller's user record, opens a session and loads every
// document the caller can see.
func (h *SyncHandler) Open(c *gin.Context) {
	ctx := c.Request.Context()
	sub := middleware.Subject(c)
	if h.users != nil {
		if _, err := h.users.UpsertFromClaims(ctx, middleware.Claims(c)); err != nil {
			logger.Warnf("sync: user bootstrap for %s failed: %v", sub, err)
			writeError(c, errors.Join(document.ErrRemoteUnavailable, err))
			return
		}
	}

	ev := newHub()
	sess, err := h.engine.Open(engine.Identity{UserID: sub}, ev)
	if err != nil {
		writeError(c, err)
		return
	}
	go ev.pump(sess.Signals())

	lease, err := h.leases.CreateLease(ctx, sub, h.ttl)
	if err != nil {
		sess.Close()
		logger.Errorf("sync: create lease for %s: %v", sub, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	ls := &liveSession{token: lease.Token, sub: sub, sess: sess, events: ev, expiresAt: lease.ExpiresAt}
	h.mu.Lock()
	h.live[lease.Token] = ls
	h.mu.Unlock()

	views, err := sess.LoadAll(ctx)
	resp := gin.H{"token": lease.Token, "expiresAt": lease.ExpiresAt, "documents": views, "stale": false}
	if err != nil {
		if !errors.Is(err, document.ErrRemoteUnavailable) {
			h.drop(ls)
			_ = h.leases.DeleteLease(ctx, ls.token)
			writeError(c, err)
			return
		}
		resp["documents"] = []engine.View{}
		resp["stale"] = true
		resp["error"] = err.Error()
	}
	logger.Infof("sync: session opened for %s", sub)
	c.JSON(http.StatusCreated, resp)
}

// Close ends the session and releases its subscriptions.
func (h *SyncHandler) Close(c *gin.Context) {
	ls := current(c)
	h.drop(ls)
	if err := h.leases.DeleteLease(c.Request.Context(), ls.token); err != nil {
		logger.Warnf("sync: delete lease: %v", err)
	}
	c.Status(http.StatusNoContent)
}

func (h *SyncHandler) Reload(c *gin.Context) {
	views, err := current(c).sess.LoadAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// List returns cached documents; ?q= filters by name or content.
func (h *SyncHandler) List(c *gin.Context) {
	views, err := current(c).sess.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *SyncHandler) Create(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := current(c).sess.CreateDocument(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *SyncHandler) Get(c *gin.Context) {
	v, err := current(c).sess.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Edit replaces the document content. The write is optimistic: on a remote
// failure the edit stays pending and the response is 503 with the view.
func (h *SyncHandler) Edit(c *gin.Context) {
	var req struct {
		Content *string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ls := current(c)
	err := ls.sess.ApplyLocalEdit(c.Request.Context(), c.Param("id"), *req.Content)
	h.respondView(c, ls, err)
}

func (h *SyncHandler) Rename(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ls := current(c)
	h.respondView(c, ls, ls.sess.Rename(c.Request.Context(), c.Param("id"), req.Name))
}

func (h *SyncHandler) Share(c *gin.Context) {
	var req struct {
		Collaborators []document.Collaborator `json:"collaborators"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ls := current(c)
	h.respondView(c, ls, ls.sess.SetCollaborators(c.Request.Context(), c.Param("id"), req.Collaborators))
}

func (h *SyncHandler) Subscribe(c *gin.Context) {
	ls := current(c)
	h.respondView(c, ls, ls.sess.Subscribe(c.Request.Context(), c.Param("id")))
}

func (h *SyncHandler) Unsubscribe(c *gin.Context) {
	ls := current(c)
	h.respondView(c, ls, ls.sess.Unsubscribe(c.Request.Context(), c.Param("id")))
}

func (h *SyncHandler) Retry(c *gin.Context) {
	ls := current(c)
	h.respondView(c, ls, ls.sess.Retry(c.Request.Context(), c.Param("id")))
}

// Events streams renders and sync signals as server-sent events until the
// client disconnects or the session closes.
func (h *SyncHandler) Events(c *gin.Context) {
	stream, cancel := current(c).events.subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case ev, ok := <-stream:
			if !ok {
				return
			}
			c.SSEvent(ev.Type, ev)
			c.Writer.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// Sweep closes sessions whose lease has expired. main runs it periodically.
func (h *SyncHandler) Sweep(now time.Time) int {
	h.mu.Lock()
	var expired []*liveSession
	for _, ls := range h.live {
		if now.After(ls.expiresAt) {
			expired = append(expired, ls)
		}
	}
	h.mu.Unlock()
	for _, ls := range expired {
		h.drop(ls)
		logger.Infof("sync: session for %s expired", ls.sub)
	}
	return len(expired)
}

// Shutdown closes every live session.
func (h *SyncHandler) Shutdown() {
	h.mu.Lock()
	all := make([]*liveSession, 0, len(h.live))
	for _, ls := range h.live {
		all = append(all, ls)
	}
	h.mu.Unlock()
	for _, ls := range all {
		h.drop(ls)
	}
}

func (h *SyncHandler) drop(ls *liveSession) {
	h.mu.Lock()
	delete(h.live, ls.token)
	h.mu.Unlock()
	ls.sess.Close()
}

// lease resolves :token to a live session owned by the caller.
func (h *SyncHandler) lease(c *gin.Context) {
	token := c.Param("token")
	l, err := h.leases.ValidateLease(c.Request.Context(), token, middleware.Subject(c))
	if err == nil {
		l, err = h.leases.RenewLease(c.Request.Context(), l, h.ttl)
	}
	if err != nil {
		if errors.Is(err, sessions.ErrLeaseNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		logger.Errorf("sync: validate lease: %v", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
		return
	}
	h.mu.Lock()
	ls, ok := h.live[token]
	if ok {
		ls.expiresAt = l.ExpiresAt
	}
	h.mu.Unlock()
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session is not open on this server"})
		return
	}
	c.Set("session", ls)
	c.Next()
}

func current(c *gin.Context) *liveSession {
	return c.MustGet("session").(*liveSession)
}

// respondView answers a document operation with the document's current view,
// which carries its sync state even when the operation failed.
func (h *SyncHandler) respondView(c *gin.Context, ls *liveSession, opErr error) {
	v, err := ls.sess.Get(c.Request.Context(), c.Param("id"))
	if opErr != nil {
		if err == nil && errors.Is(opErr, document.ErrRemoteUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": opErr.Error(), "stale": true, "document": v})
			return
		}
		writeError(c, opErr)
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}
	switch {
	case errors.Is(err, document.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, document.ErrAuthorization):
		status = http.StatusForbidden
	case errors.Is(err, document.ErrInvalidDocument):
		status = http.StatusBadRequest
	case errors.Is(err, document.ErrIntegrityViolation):
		status = http.StatusConflict
	case errors.Is(err, document.ErrRemoteUnavailable):
		status = http.StatusServiceUnavailable
		body["stale"] = true
	case errors.Is(err, engine.ErrSessionClosed):
		status = http.StatusGone
	}
	if status == http.StatusInternalServerError {
		logger.Errorf("sync: unhandled error: %v", err)
	}
	c.JSON(status, body)
}
