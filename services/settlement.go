package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"truenumber-arena/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SettlementService applies the stake transfer and appends the immutable
// history records when a match concludes. It runs at most once per match:
// the settled_at stamp is claimed inside the same transaction as the balance
// deltas, so a concurrent or repeated call is a no-op.
type SettlementService struct {
	DB *gorm.DB
}

func NewSettlementService(db *gorm.DB) *SettlementService {
	return &SettlementService{DB: db}
}

var errAlreadySettled = errors.New("already settled")

// Settle transfers the stake from loser to winner and writes one GameRecord
// per participant. On a tie nothing moves and no history is written. The
// caller must have already persisted the finished match state: a dependency
// failure here rolls back the settlement only, never the recorded result.
func (s *SettlementService) Settle(match *models.Match) error {
	if match.Status != models.MatchStatusFinished || match.CreatorMove == nil || match.OpponentMove == nil {
		return fmt.Errorf("%w: match %s is not finished", ErrInvalidState, match.ID)
	}
	if match.SettledAt != nil {
		return nil
	}

	now := time.Now()

	if match.WinnerID == nil {
		// Tie: both keep their points, nothing to reconcile later.
		err := s.DB.Model(&models.Match{}).
			Where("id = ? AND settled_at IS NULL", match.ID).
			Update("settled_at", now).Error
		if err != nil {
			return fmt.Errorf("%w: mark tie settled: %v", ErrDependencyFailure, err)
		}
		match.SettledAt = &now
		return nil
	}

	winnerID := *match.WinnerID
	var loserID string
	var winnerMove, loserMove int
	if winnerID == match.CreatorID {
		loserID = *match.OpponentID
		winnerMove, loserMove = *match.CreatorMove, *match.OpponentMove
	} else {
		loserID = match.CreatorID
		winnerMove, loserMove = *match.OpponentMove, *match.CreatorMove
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// Claim the settlement. Zero rows means another path got here first.
		res := tx.Model(&models.Match{}).
			Where("id = ? AND settled_at IS NULL", match.ID).
			Update("settled_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errAlreadySettled
		}

		if err := adjustPoints(tx, winnerID, match.Stake); err != nil {
			return err
		}
		if err := adjustPoints(tx, loserID, -match.Stake); err != nil {
			return err
		}

		winnerBalance, err := playerPoints(tx, winnerID)
		if err != nil {
			return err
		}
		loserBalance, err := playerPoints(tx, loserID)
		if err != nil {
			return err
		}

		records := []models.GameRecord{
			{
				ID:           uuid.NewString(),
				UserID:       winnerID,
				MatchID:      match.ID,
				Number:       winnerMove,
				Result:       models.ResultWin,
				PointsChange: match.Stake,
				BalanceAfter: winnerBalance,
				CreatedAt:    now,
			},
			{
				ID:           uuid.NewString(),
				UserID:       loserID,
				MatchID:      match.ID,
				Number:       loserMove,
				Result:       models.ResultLose,
				PointsChange: -match.Stake,
				BalanceAfter: loserBalance,
				CreatedAt:    now,
			},
		}
		return tx.Create(&records).Error
	})

	if errors.Is(err, errAlreadySettled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: settle match %s: %v", ErrDependencyFailure, match.ID, err)
	}

	match.SettledAt = &now
	log.Printf("[SETTLE] ✅ Match %s settled: %s +%d / %s -%d", match.ID, winnerID, match.Stake, loserID, match.Stake)
	return nil
}

// adjustPoints is a single atomic balance delta on one player row.
func adjustPoints(tx *gorm.DB, externalUserID string, delta int64) error {
	res := tx.Model(&models.Player{}).
		Where("external_user_id = ?", externalUserID).
		Update("points", gorm.Expr("points + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("player %s not found in balance store", externalUserID)
	}
	return nil
}

func playerPoints(tx *gorm.DB, externalUserID string) (int64, error) {
	var player models.Player
	if err := tx.Where("external_user_id = ?", externalUserID).First(&player).Error; err != nil {
		return 0, err
	}
	return player.Points, nil
}
