package chathub

import (
	"log"
	"time"

	"resonate/backend/internal/apperr"
	"resonate/backend/internal/config"
	"resonate/backend/internal/models"
	"resonate/backend/internal/storage"
)

// Dispatcher validates inbound chat events against eligibility rules,
// persists through the chat store, and fans results out to the rooms.
// Validation failures surface to the sender only; fan-out happens strictly
// after a successful persist.
type Dispatcher struct {
	Storage  storage.Storage
	Registry *Registry
	Rooms    *RoomIndex
	Typing   *TypingStore
}

func NewDispatcher(s storage.Storage, registry *Registry, rooms *RoomIndex, typing *TypingStore) *Dispatcher {
	return &Dispatcher{Storage: s, Registry: registry, Rooms: rooms, Typing: typing}
}

// SendMessage runs the full send pipeline: eligibility, persist, fan-out,
// delivered marks for online recipients, and the sender's typing cleanup.
// Any error aborts before fan-out; a message that failed to persist is never
// broadcast.
func (d *Dispatcher) SendMessage(senderID string, p *models.SendMessagePayload) error {
	if p.ConversationID == "" || p.Content == "" {
		return apperr.ErrInvalid.WithMessage("conversationId and content are required")
	}
	messageType := p.MessageType
	if messageType == "" {
		messageType = models.MessageTypeText
	}
	if !models.ValidMessageType(messageType) {
		return apperr.ErrInvalid.WithMessage("unknown message type")
	}

	conv, err := d.Storage.FindConversation(p.ConversationID)
	if err != nil {
		return apperr.ErrUpstream.WithMessage("failed to load conversation").Wrap(err)
	}
	if conv == nil {
		return apperr.ErrNotFound.WithMessage("conversation not found")
	}
	if !conv.IsActive || !conv.HasParticipant(senderID) {
		return apperr.ErrForbidden.WithMessage("not a participant of this conversation")
	}

	// Eligibility gates the whole send: no partial delivery to a subset of
	// eligible participants.
	for _, otherID := range conv.OtherParticipants(senderID) {
		ok, err := d.Storage.CanChat(senderID, otherID)
		if err != nil {
			return apperr.ErrUpstream.WithMessage("failed to check chat eligibility").Wrap(err)
		}
		if !ok {
			return apperr.ErrForbidden.WithMessage("cannot send messages: users must be friends or have a match")
		}
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        p.Content,
		MessageType:    messageType,
	}
	if err := d.Storage.CreateMessage(msg); err != nil {
		return apperr.ErrUpstream.WithMessage("failed to send message").Wrap(err)
	}

	if env, err := models.NewEnvelope(models.EventNewMessage, msg); err == nil {
		d.Rooms.Fanout(conv.ID, env, "")
	}

	d.markDeliveredForOnline(conv, msg)

	// Having just sent, the sender is no longer typing.
	d.TypingStop(senderID, conv.ID)

	return nil
}

// markDeliveredForOnline persists the delivered transition and broadcasts it
// when at least one recipient is currently connected. Offline recipients
// pick the state up lazily from history on reconnect.
func (d *Dispatcher) markDeliveredForOnline(conv *models.Conversation, msg *models.Message) {
	anyOnline := false
	for _, otherID := range conv.OtherParticipants(msg.SenderID) {
		if d.Registry.IsOnline(otherID) {
			anyOnline = true
			break
		}
	}
	if !anyOnline {
		return
	}

	if err := d.Storage.SetDelivered(msg.ID); err != nil {
		log.Printf("ERROR: Failed to mark message %s delivered: %v", msg.ID, err)
		return
	}
	if env, err := models.NewEnvelope(models.EventMessageDelivered, models.MessageDeliveredPayload{
		MessageID:   msg.ID,
		DeliveredAt: time.Now(),
	}); err == nil {
		d.Rooms.Fanout(conv.ID, env, "")
	}
}

// MarkRead persists the read transition and notifies the conversation.
// Only a participant other than the original sender may mark a message
// read. Reading an already-read message is idempotent.
func (d *Dispatcher) MarkRead(readerID string, p *models.MarkReadPayload) error {
	if p.MessageID == "" {
		return apperr.ErrInvalid.WithMessage("messageId is required")
	}

	msg, err := d.Storage.FindMessageByID(p.MessageID)
	if err != nil {
		return apperr.ErrUpstream.WithMessage("failed to load message").Wrap(err)
	}
	if msg == nil {
		return apperr.ErrNotFound.WithMessage("message not found")
	}
	if msg.SenderID == readerID {
		return apperr.ErrForbidden.WithMessage("cannot mark own message as read")
	}

	conv, err := d.Storage.FindConversation(msg.ConversationID)
	if err != nil {
		return apperr.ErrUpstream.WithMessage("failed to load conversation").Wrap(err)
	}
	if conv == nil || !conv.HasParticipant(readerID) {
		return apperr.ErrForbidden.WithMessage("not a participant of this conversation")
	}

	if msg.IsRead {
		// Idempotent: no duplicate broadcast.
		return nil
	}

	if err := d.Storage.SetRead(msg.ID); err != nil {
		return apperr.ErrUpstream.WithMessage("failed to mark message as read").Wrap(err)
	}

	if env, err := models.NewEnvelope(models.EventMessageRead, models.MessageReadPayload{
		MessageID: msg.ID,
		ReadAt:    time.Now(),
		ReadBy:    readerID,
	}); err == nil {
		d.Rooms.Fanout(conv.ID, env, readerID)
	}
	return nil
}

// TypingStart upserts the typing entry and broadcasts user_typing to the
// conversation's other members. Repeated starts refresh the entry; each
// call broadcasts exactly once.
func (d *Dispatcher) TypingStart(userID, displayName, conversationID string) {
	entry := d.Typing.Start(conversationID, userID, displayName)

	if env, err := models.NewEnvelope(models.EventUserTyping, models.UserTypingPayload{
		UserID:      userID,
		DisplayName: displayName,
		Timestamp:   entry.Timestamp.UnixMilli(),
	}); err == nil {
		d.Rooms.Fanout(conversationID, env, userID)
	}
}

// TypingStop removes the entry (a no-op if absent) and broadcasts
// user_stopped_typing to the conversation's other members.
func (d *Dispatcher) TypingStop(userID, conversationID string) {
	d.Typing.Stop(conversationID, userID)

	if env, err := models.NewEnvelope(models.EventUserStoppedTyping, models.UserStoppedTypingPayload{
		UserID: userID,
	}); err == nil {
		d.Rooms.Fanout(conversationID, env, userID)
	}
}

// ClearTypingOnDisconnect sweeps every typing entry the departing user left
// behind and broadcasts a stop for each affected conversation, so peers
// never see a permanently typing ghost.
func (d *Dispatcher) ClearTypingOnDisconnect(userID string) {
	for _, conversationID := range d.Typing.SweepUser(userID) {
		if env, err := models.NewEnvelope(models.EventUserStoppedTyping, models.UserStoppedTypingPayload{
			UserID: userID,
		}); err == nil {
			d.Rooms.Fanout(conversationID, env, userID)
		}
	}
}

// CreateConversation creates (or returns the existing) conversation for the
// creator plus the given participants, subscribes every online participant
// to the room, and pushes conversation_created to the online ones. The
// caller delivers the result to the creator.
func (d *Dispatcher) CreateConversation(creatorID string, p *models.CreateConversationPayload) (*models.Conversation, error) {
	participants := map[string]struct{}{creatorID: {}}
	for _, id := range p.ParticipantIDs {
		if id != "" {
			participants[id] = struct{}{}
		}
	}
	if len(participants) < 2 {
		return nil, apperr.ErrInvalid.WithMessage("a conversation needs at least two participants")
	}
	ids := make([]string, 0, len(participants))
	for id := range participants {
		ids = append(ids, id)
	}

	conv, created, err := d.Storage.CreateConversation(ids, "")
	if err != nil {
		return nil, apperr.ErrUpstream.WithMessage("failed to create conversation").Wrap(err)
	}

	env, envErr := models.NewEnvelope(models.EventConversationCreated, conv)
	for _, id := range conv.Participants {
		client, online := d.Registry.Lookup(id)
		if !online {
			continue
		}
		d.Rooms.Subscribe(id, conv.ID)
		if created && id != creatorID && envErr == nil {
			trySend(client, env)
		}
	}
	return conv, nil
}

// GetMessages pages through a conversation's history for a participant.
func (d *Dispatcher) GetMessages(userID string, p *models.GetMessagesPayload) (*models.MessagesPayload, error) {
	conv, err := d.Storage.FindConversation(p.ConversationID)
	if err != nil {
		return nil, apperr.ErrUpstream.WithMessage("failed to load conversation").Wrap(err)
	}
	if conv == nil || !conv.IsActive || !conv.HasParticipant(userID) {
		return nil, apperr.ErrNotFound.WithMessage("conversation not found or access denied")
	}

	page := p.Page
	if page < 1 {
		page = 1
	}
	limit := p.Limit
	if limit < 1 {
		limit = config.DefaultPageSize
	}
	if limit > config.MaxPageSize {
		limit = config.MaxPageSize
	}

	msgs, err := d.Storage.FindMessages(conv.ID, page, limit)
	if err != nil {
		return nil, apperr.ErrUpstream.WithMessage("failed to fetch messages").Wrap(err)
	}
	return &models.MessagesPayload{
		ConversationID: conv.ID,
		Messages:       msgs,
		Page:           page,
		Limit:          limit,
	}, nil
}
