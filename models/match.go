package models

import (
	"fmt"
	"time"
)

const (
	MatchStatusWaiting  = "waiting"
	MatchStatusPlaying  = "playing"
	MatchStatusFinished = "finished"
)

// MinTimeLimitSeconds is the lowest per-turn deadline a match may be created with.
const MinTimeLimitSeconds = 10

// Match is one instance of the two-player wagering game.
// Status only ever moves forward: waiting → playing → finished.
type Match struct {
	ID         string  `gorm:"primaryKey;type:uuid" json:"id"`
	CreatorID  string  `gorm:"index;not null" json:"creator_id"`
	OpponentID *string `gorm:"index" json:"opponent_id,omitempty"` // nil until joined

	Stake            int64 `gorm:"not null" json:"stake"`
	TimeLimitSeconds int   `gorm:"not null" json:"time_limit_seconds"`

	Status string `gorm:"index;not null;default:'waiting'" json:"status"`

	// Moves are server-generated in [0,100] and set at most once each,
	// either by manual submission or by timer expiry.
	CreatorMove  *int `json:"creator_move,omitempty"`
	OpponentMove *int `json:"opponent_move,omitempty"`

	// Nil winner on a finished match means a tie.
	WinnerID *string `gorm:"index" json:"winner_id,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// TurnStartedAt anchors the countdown shown to clients: set on join and
	// refreshed whenever a move is recorded.
	TurnStartedAt *time.Time `json:"turn_started_at,omitempty"`

	// SettledAt is stamped by the settlement engine in the same transaction
	// as the balance transfer. A finished decisive match with a nil SettledAt
	// is awaiting operator reconciliation.
	SettledAt *time.Time `gorm:"index" json:"settled_at,omitempty"`

	// ArchivedAt marks the match's records as exported to the audit bucket.
	ArchivedAt *time.Time `gorm:"index" json:"-"`
}

// IsParticipant reports whether userID is the creator or the joined opponent.
func (m *Match) IsParticipant(userID string) bool {
	if m.CreatorID == userID {
		return true
	}
	return m.OpponentID != nil && *m.OpponentID == userID
}

// NextPlayer returns the participant expected to move next, or "" when both
// slots are filled. The creator always moves first.
func (m *Match) NextPlayer() string {
	if m.CreatorMove == nil {
		return m.CreatorID
	}
	if m.OpponentMove == nil && m.OpponentID != nil {
		return *m.OpponentID
	}
	return ""
}

// MatchRoom is the fan-out room name for a match.
func MatchRoom(matchID string) string {
	return fmt.Sprintf("game_%s", matchID)
}
