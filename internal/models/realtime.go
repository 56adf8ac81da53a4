package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Inbound event types (client -> server).
const (
	EventSendMessage        = "send_message"
	EventMarkRead           = "mark_read"
	EventTypingStart        = "typing_start"
	EventTypingStop         = "typing_stop"
	EventCreateConversation = "create_conversation"
	EventGetMessages        = "get_messages"
)

// Outbound event types (server -> client).
const (
	EventConnected           = "connected"
	EventConversations       = "conversations"
	EventMessages            = "messages"
	EventNewMessage          = "new_message"
	EventMessageDelivered    = "message_delivered"
	EventMessageRead         = "message_read"
	EventUserTyping          = "user_typing"
	EventUserStoppedTyping   = "user_stopped_typing"
	EventUserOnline          = "user_online"
	EventUserOffline         = "user_offline"
	EventConversationCreated = "conversation_created"
	EventError               = "error"
)

// Envelope is the single wire format carried over a connection in both
// directions: a type tag plus a payload whose shape is fixed per type.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound payload shapes. Decoding is strict: a payload that does not match
// the declared shape for its type is rejected before it reaches any handler.

type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	MessageType    string `json:"messageType"`
}

type MarkReadPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
}

type CreateConversationPayload struct {
	ParticipantIDs []string `json:"participantIds"`
}

type GetMessagesPayload struct {
	ConversationID string `json:"conversationId"`
	Page           int    `json:"page"`
	Limit          int    `json:"limit"`
}

// Outbound payload shapes.

type ConnectedPayload struct {
	UserID string `json:"userId"`
}

type MessageDeliveredPayload struct {
	MessageID   string    `json:"messageId"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

type MessageReadPayload struct {
	MessageID string    `json:"messageId"`
	ReadAt    time.Time `json:"readAt"`
	ReadBy    string    `json:"readBy"`
}

type UserTypingPayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Timestamp   int64  `json:"timestamp"`
}

type UserStoppedTypingPayload struct {
	UserID string `json:"userId"`
}

type PresencePayload struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type MessagesPayload struct {
	ConversationID string    `json:"conversationId"`
	Messages       []Message `json:"messages"`
	Page           int       `json:"page"`
	Limit          int       `json:"limit"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// ErrUnknownEventType is returned by DecodeInbound for a type tag outside
// the inbound set.
var ErrUnknownEventType = errors.New("unknown event type")

// DecodeInbound parses an inbound envelope payload into its typed form.
// The returned value is one of the *Payload structs above.
func DecodeInbound(env Envelope) (any, error) {
	var target any
	switch env.Type {
	case EventSendMessage:
		target = &SendMessagePayload{}
	case EventMarkRead:
		target = &MarkReadPayload{}
	case EventTypingStart, EventTypingStop:
		target = &TypingPayload{}
	case EventCreateConversation:
		target = &CreateConversationPayload{}
	case EventGetMessages:
		target = &GetMessagesPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}

	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("event %q: empty payload", env.Type)
	}
	dec := json.NewDecoder(bytes.NewReader(env.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, fmt.Errorf("event %q: %w", env.Type, err)
	}
	return target, nil
}

// NewEnvelope builds an outbound envelope, marshalling payload in place.
func NewEnvelope(eventType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: eventType, Payload: raw}, nil
}
