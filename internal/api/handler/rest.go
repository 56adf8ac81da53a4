package handler

import (
	"net/http"
	"strconv"

	"resonate/backend/internal/apperr"
	"resonate/backend/internal/models"
	"resonate/backend/internal/moderation"

	"github.com/gin-gonic/gin"
)

// GetMessages serves paged conversation history over REST, with the same
// access rules as the realtime get_messages event.
func (h *Handler) GetMessages(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	result, err := h.Hub.Dispatch.GetMessages(c.GetString(userIDKey), &models.GetMessagesPayload{
		ConversationID: c.Param("id"),
		Page:           page,
		Limit:          limit,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CreateReport files a report against another user.
func (h *Handler) CreateReport(c *gin.Context) {
	var in moderation.ReportInput
	if err := c.ShouldBindJSON(&in); err != nil {
		renderError(c, apperr.ErrInvalid.WithMessage("invalid report payload").Wrap(err))
		return
	}
	in.ReporterID = c.GetString(userIDKey)

	report, err := h.Moderation.HandleReport(&in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"reportId": report.ID, "status": report.Status})
}

// GetOnlineUsers reads the online set from the Redis mirror, so a presence
// poll never touches the hub.
func (h *Handler) GetOnlineUsers(c *gin.Context) {
	users, err := h.Storage.OnlineUsers()
	if err != nil {
		renderError(c, apperr.ErrUpstream.WithMessage("failed to read online users").Wrap(err))
		return
	}
	if users == nil {
		users = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"online": users})
}

// Healthz reports liveness, including the backing stores when a health check
// is wired.
func (h *Handler) Healthz(c *gin.Context) {
	if h.Health != nil {
		if err := h.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
