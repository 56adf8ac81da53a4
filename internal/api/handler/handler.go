// Package handler wires the HTTP surface: the WebSocket upgrade and the small
// REST side channel for history, reports, and health.
package handler

import (
	"net/http"
	"strings"

	"resonate/backend/internal/apperr"
	"resonate/backend/internal/chathub"
	"resonate/backend/internal/moderation"
	"resonate/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

const userIDKey = "userID"

type Handler struct {
	Hub        *chathub.Hub
	Storage    storage.Storage
	Auth       chathub.Auth
	Moderation *moderation.Service

	// Health, when set, is consulted by the health endpoint. Wired to the
	// storage service's Ping in main.
	Health func() error
}

func NewHandler(hub *chathub.Hub, s storage.Storage, a chathub.Auth, m *moderation.Service) *Handler {
	return &Handler{Hub: hub, Storage: s, Auth: a, Moderation: m}
}

// RegisterRoutes mounts every endpoint on the router.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.ServeWebSocket)
	r.GET("/healthz", h.Healthz)

	authed := r.Group("/", h.requireAuth)
	authed.GET("/conversations/:id/messages", h.GetMessages)
	authed.POST("/reports", h.CreateReport)
	authed.GET("/users/online", h.GetOnlineUsers)
}

// requireAuth validates the bearer token and stashes the user ID in the
// request context.
func (h *Handler) requireAuth(c *gin.Context) {
	userID, err := h.Auth.Verify(bearerToken(c))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperr.MessageOf(err)})
		return
	}
	c.Set(userIDKey, userID)
	c.Next()
}

// bearerToken pulls the token from the Authorization header, falling back to
// the token query parameter for clients that cannot set headers.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

// renderError translates the error taxonomy into an HTTP response. The codes
// double as HTTP statuses.
func renderError(c *gin.Context, err error) {
	c.JSON(apperr.CodeOf(err), gin.H{"error": apperr.MessageOf(err)})
}
