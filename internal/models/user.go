package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // required for pq.StringArray
	"gorm.io/gorm"

	"resonate/backend/internal/config"
)

// User represents a registered account. Presence fields (IsOnline, LastSeen)
// are maintained by the realtime hub; everything else is profile data owned
// by the REST surface.
type User struct {
	ID          string `gorm:"primaryKey" json:"id"`
	DisplayName string `gorm:"type:text;not null" json:"displayName"`
	Email       string `gorm:"uniqueIndex" json:"email"`
	// SpotifyID links the account to its music profile. Empty until the
	// user connects Spotify.
	SpotifyID string `gorm:"index" json:"spotifyId,omitempty"`

	// Friends is the flat list of user IDs this user is friends with.
	// Friendship is mutual: both rows carry each other's ID.
	Friends pq.StringArray `gorm:"type:text[]" json:"friends"`

	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`

	IsBanned        bool  `json:"-"`
	BanExpiresAt    int64 `json:"-"`
	ReputationScore int   `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate is a GORM hook that generates a UUID for the user if the
// ID is not already set and seeds the reputation score. A fresh account
// starts well above the ban floor so a single report cannot ban it.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.ReputationScore == 0 {
		u.ReputationScore = config.InitialReputation
	}
	return
}
