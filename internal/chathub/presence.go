package chathub

import (
	"log"
	"time"

	"resonate/backend/internal/models"
	"resonate/backend/internal/storage"
)

// PresenceTracker turns registry transitions into presence broadcasts and
// durable online/lastSeen updates. Broadcasts are scoped to the user's
// conversation partners through the room index, never a blind fan-out to
// every connection.
type PresenceTracker struct {
	storage storage.Storage
	rooms   *RoomIndex
}

func NewPresenceTracker(s storage.Storage, rooms *RoomIndex) *PresenceTracker {
	return &PresenceTracker{storage: s, rooms: rooms}
}

// UserOnline persists the online flag and announces the user to every
// conversation they are subscribed to. The caller invokes this only for a
// previously-absent user, so a rapid reconnect emits exactly one event.
func (p *PresenceTracker) UserOnline(userID string) {
	if err := p.storage.SetOnline(userID, true); err != nil {
		log.Printf("ERROR: Failed to persist online status for user %s: %v", userID, err)
	}
	p.broadcast(userID, models.EventUserOnline)
}

// UserOffline persists lastSeen and the offline flag, then announces the
// departure to the given conversations. The conversation list is captured by
// the caller before the room index forgets the user.
func (p *PresenceTracker) UserOffline(userID string, conversationIDs []string) {
	if err := p.storage.SetLastSeen(userID, time.Now()); err != nil {
		log.Printf("ERROR: Failed to persist lastSeen for user %s: %v", userID, err)
	}
	if err := p.storage.SetOnline(userID, false); err != nil {
		log.Printf("ERROR: Failed to persist offline status for user %s: %v", userID, err)
	}

	env, err := models.NewEnvelope(models.EventUserOffline, models.PresencePayload{
		UserID:    userID,
		Timestamp: time.Now(),
	})
	if err != nil {
		return
	}
	for _, conversationID := range conversationIDs {
		p.rooms.Fanout(conversationID, env, userID)
	}
}

func (p *PresenceTracker) broadcast(userID, eventType string) {
	env, err := models.NewEnvelope(eventType, models.PresencePayload{
		UserID:    userID,
		Timestamp: time.Now(),
	})
	if err != nil {
		return
	}
	for _, conversationID := range p.rooms.Conversations(userID) {
		p.rooms.Fanout(conversationID, env, userID)
	}
}
