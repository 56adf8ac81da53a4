package chathub_test

import (
	"errors"
	"sync"
	"testing"

	"resonate/backend/internal/apperr"
	"resonate/backend/internal/chathub"
	"resonate/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// expectConnect sets up the storage and auth expectations for a successful
// Connect of the given user, whose active conversations are the given ones.
func expectConnect(storageMock *MockStorage, authMock *MockAuth, userID, displayName string, conversations []models.Conversation) {
	authMock.On("Verify", "token_"+userID).Return(userID, nil)
	authMock.On("IsBanned", userID).Return(false, nil)
	storageMock.On("GetUserByID", userID).Return(&models.User{ID: userID, DisplayName: displayName}, nil)
	storageMock.On("FindActiveConversationsForUser", userID).Return(conversations, nil)
	storageMock.On("SetOnline", userID, true).Return(nil)
}

func expectDisconnect(storageMock *MockStorage, userID string) {
	storageMock.On("SetLastSeen", userID, mock.AnythingOfType("time.Time")).Return(nil)
	storageMock.On("SetOnline", userID, false).Return(nil)
}

func TestConnect_HandshakeAndSubscriptions(t *testing.T) {
	storageMock := new(MockStorage)
	authMock := new(MockAuth)
	hub := createTestHub(storageMock, authMock)

	conv := *activeConversation("conv_1", "user_A", "user_B")
	expectConnect(storageMock, authMock, "user_A", "Alice", []models.Conversation{conv})

	a := newMockClient("user_A")
	sess, err := hub.Connect("token_user_A", a)

	assert.NoError(t, err)
	assert.Equal(t, "user_A", sess.UserID)
	assert.True(t, hub.Registry.IsOnline("user_A"))
	assert.Contains(t, hub.Rooms.Conversations("user_A"), "conv_1")

	received := a.Drain()
	assert.Len(t, received, 2)
	assert.Equal(t, models.EventConnected, received[0].Type, "connected is the first frame after the upgrade")
	var hello models.ConnectedPayload
	decodePayload(t, received[0], &hello)
	assert.Equal(t, "user_A", hello.UserID)
	assert.Equal(t, models.EventConversations, received[1].Type)

	storageMock.AssertExpectations(t)
}

func TestConnect_AnnouncesPresenceToConversationPartners(t *testing.T) {
	storageMock := new(MockStorage)
	authMock := new(MockAuth)
	hub := createTestHub(storageMock, authMock)

	b := newMockClient("user_B")
	hub.Registry.Register("user_B", b)
	hub.Rooms.Subscribe("user_B", "conv_1")

	// user_C shares no conversation with user_A and must hear nothing.
	c := newMockClient("user_C")
	hub.Registry.Register("user_C", c)
	hub.Rooms.Subscribe("user_C", "conv_2")

	conv := *activeConversation("conv_1", "user_A", "user_B")
	expectConnect(storageMock, authMock, "user_A", "Alice", []models.Conversation{conv})

	_, err := hub.Connect("token_user_A", newMockClient("user_A"))

	assert.NoError(t, err)
	received := b.Drain()
	assert.Equal(t, 1, countByType(received)[models.EventUserOnline])
	assert.Empty(t, c.Drain())
}

func TestConnect_InvalidToken(t *testing.T) {
	storageMock := new(MockStorage)
	authMock := new(MockAuth)
	hub := createTestHub(storageMock, authMock)
	authMock.On("Verify", "bad").Return("", apperr.ErrUnauthenticated)

	sess, err := hub.Connect("bad", newMockClient(""))

	assert.Nil(t, sess)
	assert.True(t, apperr.Is(err, apperr.ErrUnauthenticated))
	assert.Equal(t, "unauthenticated", chathub.CloseReason(err))
	storageMock.AssertNotCalled(t, "GetUserByID", mock.Anything)
}

func TestConnect_BannedUser(t *testing.T) {
	storageMock := new(MockStorage)
	authMock := new(MockAuth)
	hub := createTestHub(storageMock, authMock)
	authMock.On("Verify", "token").Return("user_A", nil)
	authMock.On("IsBanned", "user_A").Return(true, nil)

	sess, err := hub.Connect("token", newMockClient("user_A"))

	assert.Nil(t, sess)
	assert.True(t, apperr.Is(err, apperr.ErrForbidden))
	assert.Equal(t, "banned", chathub.CloseReason(err))
	assert.False(t, hub.Registry.IsOnline("user_A"))
}

func TestConnect_UnknownUser(t *testing.T) {
	storageMock := new(MockStorage)
	authMock := new(MockAuth)
	hub := createTestHub(storageMock, authMock)
	authMock.On("Verify", "token").Return("user_A", nil)
	authMock.On("IsBanned", "user_A").Return(false, nil)
	storageMock.On("GetUserByID", "user_A").Return(nil, nil)

	_, err := hub.Connect("token", newMockClient("user_A"))

	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
	assert.Equal(t, "not_found", chathub.CloseReason(err))
}

func TestConnect_StorageFailure(t *testing.T) {
	storageMock := new(MockStorage)
	authMock := new(MockAuth)
	hub := createTestHub(storageMock, authMock)
	authMock.On("Verify", "token").Return("user_A", nil)
	authMock.On("IsBanned", "user_A").Return(false, nil)
	storageMock.On("GetUserByID", "user_A").Return(nil, errors.New("connection refused"))

	_, err := hub.Connect("token", newMockClient("user_A"))

	assert.True(t, apperr.Is(err, apperr.ErrUpstream))
	assert.Equal(t, "server_error", chathub.CloseReason(err))
}

// TestConnect_SecondConnectionDisplacesFirst covers the rapid reconnect
// scenario: the new connection wins, the displaced one is closed, and
// partners see no duplicate user_online.
func TestConnect_SecondConnectionDisplacesFirst(t *testing.T) {
	storageMock := new(MockStorage)
	authMock := new(MockAuth)
	hub := createTestHub(storageMock, authMock)

	b := newMockClient("user_B")
	hub.Registry.Register("user_B", b)
	hub.Rooms.Subscribe("user_B", "conv_1")

	conv := *activeConversation("conv_1", "user_A", "user_B")
	expectConnect(storageMock, authMock, "user_A", "Alice", []models.Conversation{conv})

	first := newMockClient("user_A")
	firstSess, err := hub.Connect("token_user_A", first)
	assert.NoError(t, err)

	second := newMockClient("user_A")
	_, err = hub.Connect("token_user_A", second)
	assert.NoError(t, err)

	assert.True(t, first.Closed(), "the displaced connection is closed by the hub")
	current, _ := hub.Registry.Lookup("user_A")
	assert.Same(t, second, current)
	assert.Equal(t, 1, countByType(b.Drain())[models.EventUserOnline], "online already, no second announcement")

	// The stale session's teardown must not take user_A offline or
	// unsubscribe the live connection.
	firstSess.Teardown()
	assert.True(t, hub.Registry.IsOnline("user_A"))
	assert.Contains(t, hub.Rooms.Conversations("user_A"), "conv_1")
	storageMock.AssertNotCalled(t, "SetOnline", "user_A", false)
	assert.Empty(t, b.Drain(), "no user_offline for a displaced connection")
}

// TestConnect_ReplaysActiveTypingIndicators covers a reconnect while a
// partner is mid-typing: the typing_start fired before the reconnect is
// replayed so the fresh session does not show a silent conversation.
func TestConnect_ReplaysActiveTypingIndicators(t *testing.T) {
	storageMock := new(MockStorage)
	authMock := new(MockAuth)
	hub := createTestHub(storageMock, authMock)

	b := newMockClient("user_B")
	hub.Registry.Register("user_B", b)
	hub.Rooms.Subscribe("user_B", "conv_1")
	hub.Dispatch.TypingStart("user_B", "Bob", "conv_1")

	conv := *activeConversation("conv_1", "user_A", "user_B")
	expectConnect(storageMock, authMock, "user_A", "Alice", []models.Conversation{conv})

	a := newMockClient("user_A")
	_, err := hub.Connect("token_user_A", a)

	assert.NoError(t, err)
	received := a.Drain()
	assert.Len(t, received, 3)
	assert.Equal(t, models.EventUserTyping, received[2].Type)
	var typing models.UserTypingPayload
	decodePayload(t, received[2], &typing)
	assert.Equal(t, "user_B", typing.UserID)
	assert.Equal(t, "Bob", typing.DisplayName)
}

// TestConnect_RacesReconnectAgainstTeardown interleaves a reconnect with
// the previous connection's teardown many times. Whichever side runs its
// registry transition first, the user must end up online with the
// conversation memberships the reconnect seeded.
func TestConnect_RacesReconnectAgainstTeardown(t *testing.T) {
	storageMock := new(MockStorage)
	authMock := new(MockAuth)
	hub := createTestHub(storageMock, authMock)

	conv := *activeConversation("conv_1", "user_A", "user_B")
	expectConnect(storageMock, authMock, "user_A", "Alice", []models.Conversation{conv})
	expectDisconnect(storageMock, "user_A")

	for i := 0; i < 50; i++ {
		old := newMockClient("user_A")
		oldSess, err := hub.Connect("token_user_A", old)
		assert.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			oldSess.Teardown()
		}()
		go func() {
			defer wg.Done()
			_, err := hub.Connect("token_user_A", newMockClient("user_A"))
			assert.NoError(t, err)
		}()
		wg.Wait()

		assert.True(t, hub.Registry.IsOnline("user_A"))
		assert.Contains(t, hub.Rooms.Conversations("user_A"), "conv_1")
	}
}

func TestTeardown_FullDisconnectSequence(t *testing.T) {
	storageMock := new(MockStorage)
	authMock := new(MockAuth)
	hub := createTestHub(storageMock, authMock)

	b := newMockClient("user_B")
	hub.Registry.Register("user_B", b)
	hub.Rooms.Subscribe("user_B", "conv_1")

	conv := *activeConversation("conv_1", "user_A", "user_B")
	expectConnect(storageMock, authMock, "user_A", "Alice", []models.Conversation{conv})
	expectDisconnect(storageMock, "user_A")

	a := newMockClient("user_A")
	sess, err := hub.Connect("token_user_A", a)
	assert.NoError(t, err)
	b.Drain()

	// Leave a typing entry behind to verify the sweep on disconnect.
	hub.Dispatch.TypingStart("user_A", "Alice", "conv_1")
	b.Drain()

	sess.Teardown()

	assert.False(t, hub.Registry.IsOnline("user_A"))
	assert.Empty(t, hub.Rooms.Conversations("user_A"))
	assert.True(t, a.Closed())

	counts := countByType(b.Drain())
	assert.Equal(t, 1, counts[models.EventUserStoppedTyping], "typing residue cleared on disconnect")
	assert.Equal(t, 1, counts[models.EventUserOffline])
	storageMock.AssertExpectations(t)
}

func TestTeardown_Idempotent(t *testing.T) {
	storageMock := new(MockStorage)
	authMock := new(MockAuth)
	hub := createTestHub(storageMock, authMock)

	b := newMockClient("user_B")
	hub.Registry.Register("user_B", b)
	hub.Rooms.Subscribe("user_B", "conv_1")

	conv := *activeConversation("conv_1", "user_A", "user_B")
	expectConnect(storageMock, authMock, "user_A", "Alice", []models.Conversation{conv})
	expectDisconnect(storageMock, "user_A")

	sess, err := hub.Connect("token_user_A", newMockClient("user_A"))
	assert.NoError(t, err)
	b.Drain()

	sess.Teardown()
	sess.Teardown()

	storageMock.AssertNumberOfCalls(t, "SetLastSeen", 1)
	assert.Equal(t, 1, countByType(b.Drain())[models.EventUserOffline])
}
