package chathub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"resonate/backend/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// WebSocketClient implements the Client interface over gorilla/websocket.
// The send channel is owned by this client: the hub only ever goes through
// TrySend, and the mutex keeps a concurrent fan-out from racing the close.
type WebSocketClient struct {
	UserID string
	Conn   *websocket.Conn

	mu     sync.Mutex
	send   chan models.Envelope
	closed bool

	session *Session
}

func NewWebSocketClient(conn *websocket.Conn) *WebSocketClient {
	return &WebSocketClient{
		Conn: conn,
		send: make(chan models.Envelope, 256),
	}
}

// Attach binds the authenticated session to this connection. Must be called
// before Run.
func (c *WebSocketClient) Attach(session *Session) {
	c.session = session
	c.UserID = session.UserID
}

func (c *WebSocketClient) GetUserID() string { return c.UserID }

// TrySend queues env without blocking. A closed connection or a full buffer
// drops the envelope and reports false.
func (c *WebSocketClient) TrySend(env models.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// Run starts the read and write pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close marks the connection closed and shuts the send channel, which stops
// the write pump. Safe to call from both the session teardown and a registry
// replacement; the closed flag keeps late TrySend calls from hitting the
// closed channel.
func (c *WebSocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// CloseWithReason writes a policy-violation close frame and drops the
// connection. Used for authentication failures, before any pump runs.
func (c *WebSocketClient) CloseWithReason(reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	if err := c.Conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		log.Printf("WARNING: Failed to write close frame: %v", err)
	}
	c.Conn.Close()
}

// readPump reads inbound envelopes and hands them to the session in arrival
// order. It triggers teardown on any read error, including a normal close.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.session.Teardown()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error reading message: %v", err)
			}
			break
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("Error decoding JSON from client %s: %v", c.UserID, err)
			continue
		}

		c.session.HandleEnvelope(env)
	}
}

// writePump drains the send channel into the WebSocket and keeps the
// connection alive with pings. Envelopes queued behind the current one are
// flushed into the same frame.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed by Close; close the WS connection.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(env)
			if err != nil {
				log.Printf("Error encoding JSON for client %s: %v", c.UserID, err)
				continue
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(data)

			n := len(c.send)
			for i := 0; i < n; i++ {
				extra, err := json.Marshal(<-c.send)
				if err != nil {
					continue
				}
				w.Write(extra)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
