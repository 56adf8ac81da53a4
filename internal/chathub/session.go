package chathub

import (
	"log"
	"sync"

	"resonate/backend/internal/apperr"
	"resonate/backend/internal/models"
)

// Session states. A session is created in stateConnecting, moves to
// stateAuthenticated only through Hub.Connect, and ends in stateClosed.
// stateClosed is terminal.
const (
	stateConnecting = iota
	stateAuthenticated
	stateClosed
)

// Session is the per-connection lifecycle controller: it owns the
// connection from accept to teardown and routes inbound events to the
// dispatcher. Events of one session are handled in arrival order: the
// client's read pump calls HandleEnvelope sequentially.
type Session struct {
	hub    *Hub
	client Client

	UserID      string
	DisplayName string

	mu        sync.Mutex
	state     int
	closeOnce sync.Once
}

func newSession(h *Hub, client Client) *Session {
	return &Session{hub: h, client: client, state: stateConnecting}
}

func (s *Session) setState(state int) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) currentState() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HandleEnvelope decodes one inbound envelope and dispatches it by type.
// A failure on one event is reported back on this connection only and never
// affects other connections or later events on this one.
func (s *Session) HandleEnvelope(env models.Envelope) {
	if s.currentState() != stateAuthenticated {
		return
	}

	decoded, err := models.DecodeInbound(env)
	if err != nil {
		s.sendError(apperr.ErrInvalid.WithMessage("malformed event: " + env.Type).Wrap(err))
		return
	}

	switch p := decoded.(type) {
	case *models.SendMessagePayload:
		if err := s.hub.Dispatch.SendMessage(s.UserID, p); err != nil {
			s.sendError(err)
		}
	case *models.MarkReadPayload:
		if err := s.hub.Dispatch.MarkRead(s.UserID, p); err != nil {
			s.sendError(err)
		}
	case *models.TypingPayload:
		if env.Type == models.EventTypingStart {
			s.hub.Dispatch.TypingStart(s.UserID, s.DisplayName, p.ConversationID)
		} else {
			s.hub.Dispatch.TypingStop(s.UserID, p.ConversationID)
		}
	case *models.CreateConversationPayload:
		conv, err := s.hub.Dispatch.CreateConversation(s.UserID, p)
		if err != nil {
			s.sendError(err)
			return
		}
		s.send(models.EventConversationCreated, conv)
	case *models.GetMessagesPayload:
		page, err := s.hub.Dispatch.GetMessages(s.UserID, p)
		if err != nil {
			s.sendError(err)
			return
		}
		s.send(models.EventMessages, page)
	}
}

// Teardown runs the disconnect sequence exactly once, no matter whether a
// transport error and an explicit close race to trigger it. For a
// connection that was already displaced in the registry the sequence is a
// no-op apart from closing the transport.
func (s *Session) Teardown() {
	s.closeOnce.Do(func() {
		s.setState(stateClosed)
		s.hub.disconnect(s.UserID, s.client)
		s.client.Close()
	})
}

func (s *Session) send(eventType string, payload any) {
	env, err := models.NewEnvelope(eventType, payload)
	if err != nil {
		log.Printf("ERROR: Failed to encode %s event for user %s: %v", eventType, s.UserID, err)
		return
	}
	trySend(s.client, env)
}

func (s *Session) sendError(err error) {
	if apperr.CodeOf(err) == apperr.CodeUpstream {
		log.Printf("ERROR: Event from user %s failed upstream: %v", s.UserID, err)
	}
	s.send(models.EventError, models.ErrorPayload{Message: apperr.MessageOf(err)})
}
