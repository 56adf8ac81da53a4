package chathub

import "sync"

// Registry maps an authenticated user ID to at most one live connection.
// It is the single source of truth for presence: a user is online iff the
// registry holds a connection for them. All methods are safe for concurrent
// use from independent connection lifecycles.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register installs client as the user's connection, displacing any prior
// one (last connection wins). It returns the displaced connection, if any,
// and whether the user was already online. The caller owns closing the
// displaced connection.
func (r *Registry) Register(userID string, client Client) (prior Client, wasOnline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prior, wasOnline = r.clients[userID]
	if prior == client {
		// Idempotent under retry.
		return nil, wasOnline
	}
	r.clients[userID] = client
	return prior, wasOnline
}

// Unregister removes the mapping only if client is still the registered
// connection for the user. A stale connection tearing down after it was
// replaced must not clobber its successor; for such callers this is a no-op
// and Unregister returns false.
func (r *Registry) Unregister(userID string, client Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.clients[userID]
	if !ok || current != client {
		return false
	}
	delete(r.clients, userID)
	return true
}

// Lookup returns the user's live connection, if any.
func (r *Registry) Lookup(userID string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	return c, ok
}

// IsOnline reports whether the user has a live connection.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}
