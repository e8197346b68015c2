package models

import (
	"time"

	"gorm.io/gorm"
)

// Player is a local snapshot of user data needed for matches, owned solely by
// the arena service. Profile fields are populated by the sync worker from the
// Profile Service; Points is authoritative here and mutated only through
// atomic increments/decrements by the settlement engine.
type Player struct {
	ID                string  `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID    string  `gorm:"uniqueIndex;not null" json:"external_user_id"` // the profile service's UUID
	Username          string  `gorm:"index;not null" json:"username"`
	ProfilePictureURL *string `json:"profile_picture_url,omitempty"`
	Role              string  `gorm:"default:'gamer'" json:"role"`

	// Points may go negative: no floor is enforced, a timed-out loser still
	// pays the stake.
	Points int64 `gorm:"not null;default:0" json:"points"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// PlayerSummary is the public projection attached to waiting-match listings.
type PlayerSummary struct {
	ExternalUserID    string  `json:"external_user_id"`
	Username          string  `json:"username"`
	ProfilePictureURL *string `json:"profile_picture_url,omitempty"`
}

func (p *Player) Summary() PlayerSummary {
	return PlayerSummary{
		ExternalUserID:    p.ExternalUserID,
		Username:          p.Username,
		ProfilePictureURL: p.ProfilePictureURL,
	}
}
