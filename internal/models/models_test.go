package models_test

import (
	"testing"

	"resonate/backend/internal/config"
	"resonate/backend/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

// TestUserBeforeCreate_GeneratesUUID verifies that the BeforeCreate hook generates a valid UUID.
func TestUserBeforeCreate_GeneratesUUID(t *testing.T) {
	// Arrange
	user := &models.User{
		DisplayName: "alice",
		Email:       "alice@example.com",
		Friends:     pq.StringArray{"bob-id"},
	}
	assert.Empty(t, user.ID, "User ID should be empty before BeforeCreate")

	// Act - Call the hook directly (GORM would call this automatically)
	err := user.BeforeCreate(nil)

	// Assert
	assert.NoError(t, err)
	assert.NotEmpty(t, user.ID, "User ID must be populated after BeforeCreate")
	parsed, parseErr := uuid.Parse(user.ID)
	assert.NoError(t, parseErr, "User ID must be a valid UUID string")
	assert.NotEqual(t, uuid.Nil, parsed)
}

// TestUserBeforeCreate_PreservesExistingID verifies that the hook doesn't overwrite an existing ID.
func TestUserBeforeCreate_PreservesExistingID(t *testing.T) {
	existingID := uuid.New().String()
	user := &models.User{ID: existingID, DisplayName: "bob"}

	err := user.BeforeCreate(nil)

	assert.NoError(t, err)
	assert.Equal(t, existingID, user.ID)
}

// TestUserBeforeCreate_SeedsReputation verifies a fresh account starts at
// the initial reputation rather than zero.
func TestUserBeforeCreate_SeedsReputation(t *testing.T) {
	user := &models.User{DisplayName: "carol"}

	err := user.BeforeCreate(nil)

	assert.NoError(t, err)
	assert.Equal(t, config.InitialReputation, user.ReputationScore)
}

// TestUserBeforeCreate_PreservesExistingReputation verifies the hook does
// not reset a score that was set explicitly, as a restored backup row would be.
func TestUserBeforeCreate_PreservesExistingReputation(t *testing.T) {
	user := &models.User{DisplayName: "dave", ReputationScore: 420}

	err := user.BeforeCreate(nil)

	assert.NoError(t, err)
	assert.Equal(t, 420, user.ReputationScore)
}

func TestConversationParticipants(t *testing.T) {
	conv := &models.Conversation{
		ID:           "c1",
		Participants: pq.StringArray{"a", "b", "c"},
	}

	assert.True(t, conv.HasParticipant("b"))
	assert.False(t, conv.HasParticipant("z"))
	assert.ElementsMatch(t, []string{"b", "c"}, conv.OtherParticipants("a"))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, conv.OtherParticipants("z"))
}

func TestMessageBeforeCreate(t *testing.T) {
	msg := &models.Message{ConversationID: "c1", SenderID: "a", Content: "hi", MessageType: models.MessageTypeText}

	err := msg.BeforeCreate(nil)

	assert.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.SentAt.IsZero(), "SentAt must be assigned on create")
	assert.False(t, msg.IsDelivered)
	assert.False(t, msg.IsRead)
}

func TestValidMessageType(t *testing.T) {
	assert.True(t, models.ValidMessageType(models.MessageTypeText))
	assert.True(t, models.ValidMessageType(models.MessageTypeImage))
	assert.True(t, models.ValidMessageType(models.MessageTypeTrackShare))
	assert.False(t, models.ValidMessageType("carrier_pigeon"))
	assert.False(t, models.ValidMessageType(""))
}
