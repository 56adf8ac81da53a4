package chathub_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"resonate/backend/internal/chathub"
	"resonate/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify mock over the storage.Storage interface.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) FindConversation(id string) (*models.Conversation, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockStorage) FindActiveConversationsForUser(userID string) ([]models.Conversation, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversation), args.Error(1)
}

func (m *MockStorage) CreateConversation(participantIDs []string, matchID string) (*models.Conversation, bool, error) {
	args := m.Called(participantIDs, matchID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Conversation), args.Bool(1), args.Error(2)
}

func (m *MockStorage) CreateMessage(msg *models.Message) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *MockStorage) SetDelivered(messageID string) error {
	args := m.Called(messageID)
	return args.Error(0)
}

func (m *MockStorage) SetRead(messageID string) error {
	args := m.Called(messageID)
	return args.Error(0)
}

func (m *MockStorage) FindMessageByID(messageID string) (*models.Message, error) {
	args := m.Called(messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) FindMessages(conversationID string, page, limit int) ([]models.Message, error) {
	args := m.Called(conversationID, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) CanChat(userA, userB string) (bool, error) {
	args := m.Called(userA, userB)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) GetUserByID(userID string) (*models.User, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) SetOnline(userID string, online bool) error {
	args := m.Called(userID, online)
	return args.Error(0)
}

func (m *MockStorage) SetLastSeen(userID string, t time.Time) error {
	args := m.Called(userID, t)
	return args.Error(0)
}

func (m *MockStorage) OnlineUsers() ([]string, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStorage) IsUserBanned(userID string) (bool, error) {
	args := m.Called(userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) SaveReport(report *models.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

func (m *MockStorage) GetReportByID(id uint) (*models.Report, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Report), args.Error(1)
}

func (m *MockStorage) UpdateReport(report *models.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

func (m *MockStorage) CountRecentReports(userID string, since time.Time) (int64, error) {
	args := m.Called(userID, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) UpdateUserReputation(userID string, delta int) error {
	args := m.Called(userID, delta)
	return args.Error(0)
}

func (m *MockStorage) BanUser(userID string, duration time.Duration) error {
	args := m.Called(userID, duration)
	return args.Error(0)
}

func (m *MockStorage) UnbanUser(userID string) error {
	args := m.Called(userID)
	return args.Error(0)
}

// MockAuth is a testify mock over the chathub.Auth interface.
type MockAuth struct {
	mock.Mock
}

func (m *MockAuth) Verify(token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}

func (m *MockAuth) IsBanned(userID string) (bool, error) {
	args := m.Called(userID)
	return args.Bool(0), args.Error(1)
}

// MockClient is a test double for the chathub.Client interface. Its Recv
// channel is buffered so hub writes never block in tests.
type MockClient struct {
	userID string
	Recv   chan models.Envelope

	mu     sync.Mutex
	closed bool
}

func newMockClient(userID string) *MockClient {
	return &MockClient{
		userID: userID,
		Recv:   make(chan models.Envelope, 32),
	}
}

func (c *MockClient) GetUserID() string { return c.userID }

func (c *MockClient) TrySend(env models.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Recv <- env:
		return true
	default:
		return false
	}
}

func (c *MockClient) Run() {}

func (c *MockClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *MockClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Drain returns every envelope buffered so far.
func (c *MockClient) Drain() []models.Envelope {
	var envs []models.Envelope
	for {
		select {
		case env := <-c.Recv:
			envs = append(envs, env)
		default:
			return envs
		}
	}
}

// CountByType tallies drained envelopes by their type tag.
func countByType(envs []models.Envelope) map[string]int {
	counts := make(map[string]int)
	for _, env := range envs {
		counts[env.Type]++
	}
	return counts
}

// decodePayload unmarshals an envelope payload into target, failing the
// test on mismatch.
func decodePayload(t *testing.T, env models.Envelope, target any) {
	t.Helper()
	assert.NoError(t, json.Unmarshal(env.Payload, target))
}

// createTestHub builds a hub over the given mocks.
func createTestHub(storageMock *MockStorage, authMock *MockAuth) *chathub.Hub {
	return chathub.NewHub(storageMock, authMock)
}
