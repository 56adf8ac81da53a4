package chathub

import (
	"sync"

	"resonate/backend/internal/models"
)

type set map[string]struct{}

// RoomIndex tracks which users are subscribed to which conversation. It
// stores user IDs, not connection handles: fan-out resolves live connections
// through the Registry at delivery time, so an offline member is simply
// skipped and a replaced connection is never written to.
type RoomIndex struct {
	mu       sync.RWMutex
	registry *Registry
	members  map[string]set // conversation ID -> member user IDs
	byUser   map[string]set // user ID -> conversation IDs, for disconnect cleanup
}

func NewRoomIndex(registry *Registry) *RoomIndex {
	return &RoomIndex{
		registry: registry,
		members:  make(map[string]set),
		byUser:   make(map[string]set),
	}
}

// Subscribe adds the user to the conversation's membership set. Idempotent.
func (ri *RoomIndex) Subscribe(userID, conversationID string) {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	if _, ok := ri.members[conversationID]; !ok {
		ri.members[conversationID] = make(set)
	}
	ri.members[conversationID][userID] = struct{}{}

	if _, ok := ri.byUser[userID]; !ok {
		ri.byUser[userID] = make(set)
	}
	ri.byUser[userID][conversationID] = struct{}{}
}

// SubscribeAll seeds the user's membership from their active conversations
// at connect time.
func (ri *RoomIndex) SubscribeAll(userID string, conversationIDs []string) {
	for _, id := range conversationIDs {
		ri.Subscribe(userID, id)
	}
}

// Conversations returns the conversation IDs the user is subscribed to.
func (ri *RoomIndex) Conversations(userID string) []string {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	ids := make([]string, 0, len(ri.byUser[userID]))
	for id := range ri.byUser[userID] {
		ids = append(ids, id)
	}
	return ids
}

// RemoveUser drops the user from every conversation set. Empty sets are
// deleted so the index does not leak rooms over time.
func (ri *RoomIndex) RemoveUser(userID string) {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	for conversationID := range ri.byUser[userID] {
		if members, ok := ri.members[conversationID]; ok {
			delete(members, userID)
			if len(members) == 0 {
				delete(ri.members, conversationID)
			}
		}
	}
	delete(ri.byUser, userID)
}

// Fanout delivers env to every currently-online member of the conversation,
// except excludeUserID (pass "" to exclude nobody). Offline members receive
// nothing; there is no queuing. The membership snapshot is taken under the
// read lock, delivery happens outside it.
func (ri *RoomIndex) Fanout(conversationID string, env models.Envelope, excludeUserID string) {
	ri.mu.RLock()
	memberIDs := make([]string, 0, len(ri.members[conversationID]))
	for userID := range ri.members[conversationID] {
		if userID != excludeUserID {
			memberIDs = append(memberIDs, userID)
		}
	}
	ri.mu.RUnlock()

	for _, userID := range memberIDs {
		if client, ok := ri.registry.Lookup(userID); ok {
			trySend(client, env)
		}
	}
}
