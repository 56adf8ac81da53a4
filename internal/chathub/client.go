package chathub

import (
	"log"

	"resonate/backend/internal/models"
)

// Client is the transport abstraction for one live connection. It hides the
// underlying mechanism (WebSocket in production, in-memory doubles in tests)
// so the hub can manage every connection uniformly.
type Client interface {
	// GetUserID returns the identity this connection was authenticated as.
	GetUserID() string

	// TrySend queues env for delivery without blocking. It reports false if
	// the connection is closed or its buffer is full. Safe to call
	// concurrently with Close: an envelope racing a close is dropped, never
	// a panic.
	TrySend(env models.Envelope) bool

	// Run starts the client's read and write pumps.
	Run()

	// Close shuts the connection down. Safe to call more than once.
	Close()
}

// trySend delivers env to the client without blocking. Fan-out is
// best-effort, at most once per online recipient: if the client's send
// buffer is full the event is dropped, and the recipient recovers the state
// from history on its next fetch.
func trySend(c Client, env models.Envelope) {
	if !c.TrySend(env) {
		log.Printf("WARNING: Dropping %s event for client %s", env.Type, c.GetUserID())
	}
}
