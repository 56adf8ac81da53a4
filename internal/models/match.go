package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Match statuses. Only an accepted match grants chat eligibility.
const (
	MatchStatusPending  = "pending"
	MatchStatusAccepted = "accepted"
	MatchStatusExpired  = "expired"
)

// Match pairs two users by music compatibility. Matching itself happens in
// the REST surface; the hub only consults matches through the social graph
// eligibility check.
type Match struct {
	ID      string `gorm:"primaryKey" json:"id"`
	User1ID string `gorm:"index:idx_match_pair" json:"user1Id"`
	User2ID string `gorm:"index:idx_match_pair" json:"user2Id"`

	MatchScore  float64 `json:"matchScore"`
	Status      string  `gorm:"index" json:"status"`
	InitiatedBy string  `json:"initiatedBy"`

	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (m *Match) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}
