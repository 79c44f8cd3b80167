package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rapidoc/docsync/internal/sessions"
	"github.com/rapidoc/docsync/internal/tokens"
	"github.com/rapidoc/docsync/internal/users"
	"github.com/rapidoc/docsync/pkg/logger"
	"github.com/rapidoc/docsync/pkg/middleware"
)

// AuthHandler serves the caller's profile and logout. Login itself happens
// against Keycloak; the gateway only verifies the resulting tokens.
type AuthHandler struct {
	users *users.Service
}

func NewAuthHandler(u *users.Service) *AuthHandler {
	return &AuthHandler{users: u}
}

// Register mounts /me and /logout; rg must already run AuthMiddleware.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/me", h.Me)
	rg.POST("/logout", h.Logout)
}

// Me records the caller from their token claims and returns the profile.
func (h *AuthHandler) Me(c *gin.Context) {
	u, err := h.users.UpsertFromClaims(c.Request.Context(), middleware.Claims(c))
	if err != nil && u == nil {
		if errors.Is(err, users.ErrNoSubject) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		logger.Errorf("auth: user upsert failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user upsert failed"})
		return
	}
	resp := gin.H{"user": u}
	if err != nil {
		resp["warning"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// Logout revokes the presented access token for the rest of its lifetime.
func (h *AuthHandler) Logout(c *gin.Context) {
	token := c.GetString(middleware.TokenKey)
	ttl := tokens.Remaining(middleware.Claims(c), time.Now(), time.Hour)
	if err := sessions.RevokeAccessToken(c.Request.Context(), token, ttl); err != nil {
		logger.Errorf("auth: revoke access token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
