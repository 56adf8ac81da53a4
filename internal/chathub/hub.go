package chathub

import (
	"log"
	"sync"
	"time"

	"resonate/backend/internal/apperr"
	"resonate/backend/internal/config"
	"resonate/backend/internal/models"
	"resonate/backend/internal/storage"
)

// Auth is the authentication collaborator contract the hub depends on.
type Auth interface {
	Verify(token string) (string, error)
	IsBanned(userID string) (bool, error)
}

// Hub owns the shared realtime state (registry, room index, typing store)
// and wires the dispatcher and presence tracker over it. One hub per
// process; every component that needs the shared state receives it from
// here, never through a package-level variable.
type Hub struct {
	Storage storage.Storage
	Auth    Auth

	// mu serializes registry transitions together with the room
	// membership they seed or clear, so a reconnect interleaving with a
	// teardown can never end up online but without its rooms. It is
	// never held across storage or client calls.
	mu sync.Mutex

	Registry *Registry
	Rooms    *RoomIndex
	Typing   *TypingStore
	Dispatch *Dispatcher
	Presence *PresenceTracker
}

func NewHub(s storage.Storage, a Auth) *Hub {
	registry := NewRegistry()
	rooms := NewRoomIndex(registry)
	typing := NewTypingStore(config.TypingExpiry)

	return &Hub{
		Storage:  s,
		Auth:     a,
		Registry: registry,
		Rooms:    rooms,
		Typing:   typing,
		Dispatch: NewDispatcher(s, registry, rooms, typing),
		Presence: NewPresenceTracker(s, rooms),
	}
}

// Run drives the typing TTL sweep. Entries a client forgot to stop expire
// after the liveness window and peers get the stop event from here instead.
func (h *Hub) Run() {
	ticker := time.NewTicker(config.TypingSweepInterval)
	defer ticker.Stop()

	for now := range ticker.C {
		for conversationID, userIDs := range h.Typing.SweepExpired(now) {
			for _, userID := range userIDs {
				if env, err := models.NewEnvelope(models.EventUserStoppedTyping, models.UserStoppedTypingPayload{
					UserID: userID,
				}); err == nil {
					h.Rooms.Fanout(conversationID, env, userID)
				}
			}
		}
	}
}

// Connect authenticates a freshly accepted connection and, on success,
// registers it, seeds its conversation memberships, sends the connected
// handshake, and announces presence. On failure the connection never
// reaches Authenticated; the caller closes it with CloseReason(err).
func (h *Hub) Connect(token string, client Client) (*Session, error) {
	sess := newSession(h, client)

	userID, err := h.Auth.Verify(token)
	if err != nil {
		return nil, err
	}

	banned, err := h.Auth.IsBanned(userID)
	if err != nil {
		return nil, apperr.ErrUpstream.WithMessage("failed to check ban status").Wrap(err)
	}
	if banned {
		return nil, apperr.ErrForbidden.WithMessage("user is banned")
	}

	user, err := h.Storage.GetUserByID(userID)
	if err != nil {
		return nil, apperr.ErrUpstream.WithMessage("failed to load user").Wrap(err)
	}
	if user == nil {
		return nil, apperr.ErrNotFound.WithMessage("user not found")
	}

	sess.UserID = user.ID
	sess.DisplayName = user.DisplayName

	conversations, err := h.Storage.FindActiveConversationsForUser(user.ID)
	if err != nil {
		log.Printf("ERROR: Failed to load conversations for user %s: %v", user.ID, err)
		conversations = nil
	}
	ids := make([]string, 0, len(conversations))
	for _, conv := range conversations {
		ids = append(ids, conv.ID)
	}

	// Last connection wins; the lifecycle controller owns closing the
	// displaced one so it is never left dangling. Registration and room
	// seeding happen under one lock so a concurrent teardown of the old
	// connection observes either none or both.
	h.mu.Lock()
	prior, wasOnline := h.Registry.Register(user.ID, client)
	h.Rooms.SubscribeAll(user.ID, ids)
	h.mu.Unlock()

	if prior != nil {
		prior.Close()
	}

	sess.send(models.EventConnected, models.ConnectedPayload{UserID: user.ID})
	sess.send(models.EventConversations, conversations)

	// A reconnecting client missed any typing_start its peers sent while
	// it was away, so replay the still-live entries before regular
	// dispatch resumes.
	now := time.Now()
	for _, conversationID := range ids {
		for _, entry := range h.Typing.Active(conversationID, now) {
			if entry.UserID == user.ID {
				continue
			}
			sess.send(models.EventUserTyping, models.UserTypingPayload{
				UserID:      entry.UserID,
				DisplayName: entry.DisplayName,
				Timestamp:   entry.Timestamp.UnixMilli(),
			})
		}
	}

	if !wasOnline {
		h.Presence.UserOnline(user.ID)
	}

	sess.setState(stateAuthenticated)
	log.Printf("User %s connected", user.ID)
	return sess, nil
}

// disconnect runs the registry and room side of a teardown. The
// unregister check and the room cleanup sit under the same lock that
// Connect registers under, so a reconnect either fully precedes or fully
// follows them and never loses the memberships it just seeded.
func (h *Hub) disconnect(userID string, client Client) {
	h.mu.Lock()
	ok := h.Registry.Unregister(userID, client)
	var conversationIDs []string
	if ok {
		conversationIDs = h.Rooms.Conversations(userID)
		h.Rooms.RemoveUser(userID)
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	h.Dispatch.ClearTypingOnDisconnect(userID)
	h.Presence.UserOffline(userID, conversationIDs)
	log.Printf("User %s disconnected", userID)
}

// CloseReason maps a Connect failure to the protocol-level close reason.
func CloseReason(err error) string {
	switch apperr.CodeOf(err) {
	case apperr.CodeUnauthenticated:
		return "unauthenticated"
	case apperr.CodeForbidden:
		return "banned"
	case apperr.CodeNotFound:
		return "not_found"
	default:
		return "server_error"
	}
}
