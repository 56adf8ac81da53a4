package handler

import (
	"log"
	"net/http"

	"resonate/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allows connections from any origin. Tighten for production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the HTTP connection and hands it to the hub.
// Authentication happens after the upgrade so failures can be reported as a
// close frame with a reason instead of a bare HTTP status.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	token := bearerToken(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to upgrade connection"})
		return
	}

	client := chathub.NewWebSocketClient(conn)
	sess, err := h.Hub.Connect(token, client)
	if err != nil {
		log.Printf("WARNING: Rejected connection: %v", err)
		client.CloseWithReason(chathub.CloseReason(err))
		return
	}

	client.Attach(sess)
	client.Run()
}
