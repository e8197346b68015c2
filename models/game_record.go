package models

import "time"

const (
	ResultWin  = "win"
	ResultLose = "lose"
)

// GameRecord is the append-only history of a participant's finished match:
// their own move, outcome, point delta and the balance snapshot right after
// settlement. Written only by the settlement engine, never updated.
type GameRecord struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID       string    `gorm:"index;not null" json:"user_id"`
	MatchID      string    `gorm:"index;not null" json:"match_id"`
	Number       int       `gorm:"not null" json:"number"`
	Result       string    `gorm:"type:varchar(8);not null;check:result IN ('win','lose')" json:"result"`
	PointsChange int64     `gorm:"not null" json:"points_change"`
	BalanceAfter int64     `gorm:"not null" json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}
