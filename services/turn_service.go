package services

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"truenumber-arena/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// TurnService validates whose turn it is, generates the move value and
// evaluates match completion. Manual submissions and timer expiries run the
// exact same path; the only difference is the timeout flag carried in the
// broadcast.
type TurnService struct {
	DB         *gorm.DB
	Locks      *MatchLocker
	Timers     *TimerRegistry
	Hub        *Hub
	Settlement *SettlementService

	// rng is swappable in tests; production uses the global math/rand source.
	rng func(n int) int
}

func NewTurnService(db *gorm.DB, locks *MatchLocker, timers *TimerRegistry, hub *Hub, settlement *SettlementService) *TurnService {
	return &TurnService{
		DB:         db,
		Locks:      locks,
		Timers:     timers,
		Hub:        hub,
		Settlement: settlement,
		rng:        rand.Intn,
	}
}

// TurnResult is what the caller gets back after a move is recorded.
type TurnResult struct {
	Move       int     `json:"move"`
	Finished   bool    `json:"finished"`
	NextPlayer string  `json:"next_player,omitempty"`
	WinnerID   *string `json:"winner_id,omitempty"`
	Tie        bool    `json:"tie"`
}

// SubmitTurn records a server-generated move for playerID. The caller never
// supplies the value.
func (s *TurnService) SubmitTurn(matchID, playerID string) (*TurnResult, error) {
	return s.submit(matchID, playerID, false)
}

// AutoPlay is the timer-fire path. Losing the race against a manual move
// (TurnAlreadyTaken / InvalidState) is expected and a no-op; anything else is
// an operational alert, left for the reconciliation job rather than crashing
// the timer goroutine.
func (s *TurnService) AutoPlay(matchID, playerID string) {
	_, err := s.submit(matchID, playerID, true)
	if err != nil {
		if errors.Is(err, ErrTurnAlreadyTaken) || errors.Is(err, ErrInvalidState) {
			log.Printf("[TURN] timer fire for match %s lost the race, ignoring", matchID)
			return
		}
		log.Printf("[TURN] 🚨 ALERT: auto-play failed for match %s player %s: %v", matchID, playerID, err)
	}
}

func (s *TurnService) submit(matchID, playerID string, viaTimeout bool) (*TurnResult, error) {
	unlock := s.Locks.Lock(matchID)
	defer unlock()

	var match models.Match
	if err := s.DB.First(&match, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: load match: %v", ErrDependencyFailure, err)
	}

	if !match.IsParticipant(playerID) {
		return nil, ErrForbidden
	}
	if match.Status != models.MatchStatusPlaying {
		return nil, ErrInvalidState
	}
	if playerID == match.CreatorID {
		if match.CreatorMove != nil {
			return nil, ErrTurnAlreadyTaken
		}
	} else if match.OpponentMove != nil {
		return nil, ErrTurnAlreadyTaken
	}

	// The move is accepted: whatever timer was racing us is void now.
	s.Timers.Cancel(matchID)

	move := s.rng(101)
	now := time.Now()
	if playerID == match.CreatorID {
		match.CreatorMove = &move
	} else {
		match.OpponentMove = &move
	}
	match.TurnStartedAt = &now

	finished := match.CreatorMove != nil && match.OpponentMove != nil
	if finished {
		match.Status = models.MatchStatusFinished
		match.FinishedAt = &now
		if *match.CreatorMove > *match.OpponentMove {
			creatorID := match.CreatorID
			match.WinnerID = &creatorID
		} else if *match.OpponentMove > *match.CreatorMove {
			match.WinnerID = match.OpponentID
		}
	}

	if err := s.DB.Save(&match).Error; err != nil {
		return nil, fmt.Errorf("%w: record move: %v", ErrDependencyFailure, err)
	}

	var settleErr error
	if finished {
		settleErr = s.Settlement.Settle(&match)
		if settleErr != nil {
			log.Printf("[TURN] 🚨 ALERT: match %s finished but unsettled: %v", match.ID, settleErr)
		}
	} else {
		next := match.NextPlayer()
		s.Timers.Arm(matchID, next, time.Duration(match.TimeLimitSeconds)*time.Second, s.AutoPlay)
	}

	result := &TurnResult{
		Move:       move,
		Finished:   finished,
		NextPlayer: match.NextPlayer(),
		WinnerID:   match.WinnerID,
		Tie:        finished && match.WinnerID == nil,
	}

	s.Hub.Broadcast(models.MatchRoom(match.ID), EventMatchUpdated, fiber.Map{
		"match":            match,
		"finished":         finished,
		"nextPlayer":       result.NextPlayer,
		"lastPlayedNumber": move,
		"lastPlayer":       playerID,
		"timeout":          viaTimeout,
	})

	if settleErr != nil {
		// The move and finished state are durably recorded; only the payout
		// is pending. Surface it distinctly so operators can reconcile.
		return result, settleErr
	}
	return result, nil
}

// ResumeTimers re-arms a fresh full-length deadline for every match that was
// mid-play when the process last stopped. In-flight matches are resumed, not
// forfeited.
func (s *TurnService) ResumeTimers() error {
	var matches []models.Match
	if err := s.DB.Where("status = ?", models.MatchStatusPlaying).Find(&matches).Error; err != nil {
		return fmt.Errorf("load playing matches: %w", err)
	}

	for _, m := range matches {
		next := m.NextPlayer()
		if next == "" {
			continue
		}
		s.Timers.Arm(m.ID, next, time.Duration(m.TimeLimitSeconds)*time.Second, s.AutoPlay)
		log.Printf("[TIMER] 🔁 Resumed deadline for match %s (player %s, %ds)", m.ID, next, m.TimeLimitSeconds)
	}

	if len(matches) > 0 {
		log.Printf("[TIMER] Resumed %d in-flight match timer(s)", len(matches))
	}
	return nil
}
