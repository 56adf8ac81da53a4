package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Conversation is a durable chat channel between two or more participants.
// Inactive conversations are soft-deleted: they stay queryable for history
// but never receive live fan-out.
type Conversation struct {
	ID string `gorm:"primaryKey" json:"id"`
	// MatchID references the match that opened this conversation, if any.
	MatchID string `gorm:"index" json:"matchId,omitempty"`

	// Participants holds the user IDs in this conversation. Always >= 2.
	Participants pq.StringArray `gorm:"type:text[];not null" json:"participants"`

	IsActive     bool      `gorm:"index" json:"isActive"`
	LastActivity time.Time `json:"lastActivity"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// HasParticipant reports whether userID belongs to this conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipants returns every participant except userID.
func (c *Conversation) OtherParticipants(userID string) []string {
	others := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			others = append(others, p)
		}
	}
	return others
}
