package chathub

import (
	"sync"
	"time"
)

// TypingEntry is the ephemeral record of one user typing in one
// conversation. Entries live only in process memory.
type TypingEntry struct {
	UserID      string
	DisplayName string
	Timestamp   time.Time
}

// TypingStore holds at most one entry per (conversation, user) pair. An
// entry older than the liveness window is expired: either an explicit stop
// or the periodic sweep removes it, whichever comes first.
type TypingStore struct {
	mu      sync.Mutex
	entries map[string]map[string]TypingEntry // conversation ID -> user ID -> entry
	window  time.Duration
}

func NewTypingStore(window time.Duration) *TypingStore {
	return &TypingStore{
		entries: make(map[string]map[string]TypingEntry),
		window:  window,
	}
}

// Start upserts the entry with a fresh timestamp. A repeated start refreshes
// the existing entry rather than duplicating it.
func (t *TypingStore) Start(conversationID, userID, displayName string) TypingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := TypingEntry{UserID: userID, DisplayName: displayName, Timestamp: time.Now()}
	if _, ok := t.entries[conversationID]; !ok {
		t.entries[conversationID] = make(map[string]TypingEntry)
	}
	t.entries[conversationID][userID] = entry
	return entry
}

// Stop removes the entry if present and reports whether one existed.
// Removing an absent entry is a no-op, not an error.
func (t *TypingStore) Stop(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remove(conversationID, userID)
}

// SweepUser removes every entry for the user across all conversations and
// returns the affected conversation IDs, so the caller can broadcast a stop
// for each. Called on disconnect so peers never see a permanent "typing…".
func (t *TypingStore) SweepUser(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var cleared []string
	for conversationID, users := range t.entries {
		if _, ok := users[userID]; ok {
			t.remove(conversationID, userID)
			cleared = append(cleared, conversationID)
		}
	}
	return cleared
}

// SweepExpired removes entries older than the liveness window and returns
// them keyed by conversation ID.
func (t *TypingStore) SweepExpired(now time.Time) map[string][]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	expired := make(map[string][]string)
	for conversationID, users := range t.entries {
		for userID, entry := range users {
			if now.Sub(entry.Timestamp) > t.window {
				t.remove(conversationID, userID)
				expired[conversationID] = append(expired[conversationID], userID)
			}
		}
	}
	return expired
}

// Active returns the unexpired entries for a conversation.
func (t *TypingStore) Active(conversationID string, now time.Time) []TypingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var active []TypingEntry
	for _, entry := range t.entries[conversationID] {
		if now.Sub(entry.Timestamp) <= t.window {
			active = append(active, entry)
		}
	}
	return active
}

// remove expects t.mu held.
func (t *TypingStore) remove(conversationID, userID string) bool {
	users, ok := t.entries[conversationID]
	if !ok {
		return false
	}
	if _, ok := users[userID]; !ok {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.entries, conversationID)
	}
	return true
}
