package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message type values accepted on send_message.
const (
	MessageTypeText       = "text"
	MessageTypeImage      = "image"
	MessageTypeTrackShare = "track_share"
)

// Message is a persisted chat message. Delivery state moves strictly
// forward: sent -> delivered -> read. Read implies delivered, and none of
// the timestamps may precede SentAt.
type Message struct {
	ID             string `gorm:"primaryKey" json:"id"`
	ConversationID string `gorm:"index:idx_conv_sent;not null" json:"conversationId"`
	SenderID       string `gorm:"index;not null" json:"senderId"`

	Content     string `gorm:"type:text;not null" json:"content"`
	MessageType string `gorm:"type:text;not null" json:"messageType"`

	SentAt      time.Time  `gorm:"index:idx_conv_sent" json:"sentAt"`
	IsDelivered bool       `json:"isDelivered"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	IsRead      bool       `json:"isRead"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now()
	}
	return
}

// ValidMessageType reports whether t is one of the accepted message types.
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeTrackShare:
		return true
	}
	return false
}
