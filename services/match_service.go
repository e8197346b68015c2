package services

import (
	"errors"
	"fmt"
	"math"
	"time"

	"truenumber-arena/models"
	"truenumber-arena/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MatchService owns the match registry and its lifecycle transitions. The
// REST handlers below and the websocket loop both funnel into the same core
// operations.
type MatchService struct {
	DB     *gorm.DB
	Locks  *MatchLocker
	Timers *TimerRegistry
	Hub    *Hub
	Turns  *TurnService
}

func NewMatchService(db *gorm.DB, locks *MatchLocker, timers *TimerRegistry, hub *Hub, turns *TurnService) *MatchService {
	return &MatchService{DB: db, Locks: locks, Timers: timers, Hub: hub, Turns: turns}
}

// WaitingMatch is a waiting-list row enriched with the creator's public profile.
type WaitingMatch struct {
	models.Match
	Creator models.PlayerSummary `json:"creator"`
}

// MatchView is the participant-facing status projection.
type MatchView struct {
	ID                   string  `json:"id"`
	Status               string  `json:"status"`
	Stake                int64   `json:"stake"`
	TimeLimitSeconds     int     `json:"time_limit_seconds"`
	CreatorID            string  `json:"creator_id"`
	OpponentID           *string `json:"opponent_id,omitempty"`
	CurrentTurn          string  `json:"current_turn,omitempty"`
	TimeRemainingSeconds int     `json:"time_remaining_seconds"`
	CreatorPlayed        bool    `json:"creator_played"`
	OpponentPlayed       bool    `json:"opponent_played"`
	WinnerID             *string `json:"winner_id,omitempty"`
	Tie                  bool    `json:"tie"`
}

// CreateMatch opens a new waiting match after validating the stake against
// the creator's balance.
func (s *MatchService) CreateMatch(creatorID string, stake int64, timeLimitSeconds int) (*models.Match, error) {
	if stake <= 0 {
		return nil, fmt.Errorf("%w: stake must be positive", ErrInvalidParameters)
	}
	if timeLimitSeconds < models.MinTimeLimitSeconds {
		return nil, fmt.Errorf("%w: time limit must be at least %d seconds", ErrInvalidParameters, models.MinTimeLimitSeconds)
	}

	creator, err := s.loadPlayer(creatorID)
	if err != nil {
		return nil, err
	}
	if creator.Points < stake {
		return nil, ErrInsufficientBalance
	}

	match := &models.Match{
		ID:               uuid.NewString(),
		CreatorID:        creatorID,
		Stake:            stake,
		TimeLimitSeconds: timeLimitSeconds,
		Status:           models.MatchStatusWaiting,
		CreatedAt:        time.Now(),
	}
	if err := s.DB.Create(match).Error; err != nil {
		return nil, fmt.Errorf("%w: create match: %v", ErrDependencyFailure, err)
	}
	return match, nil
}

// ListWaitingMatches returns a snapshot of every joinable match, each with
// the creator's public profile attached.
func (s *MatchService) ListWaitingMatches() ([]WaitingMatch, error) {
	var matches []models.Match
	if err := s.DB.Where("status = ?", models.MatchStatusWaiting).
		Order("created_at DESC").
		Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("%w: list waiting matches: %v", ErrDependencyFailure, err)
	}

	creatorIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		creatorIDs = append(creatorIDs, m.CreatorID)
	}

	profiles := make(map[string]models.PlayerSummary, len(creatorIDs))
	if len(creatorIDs) > 0 {
		var players []models.Player
		if err := s.DB.Where("external_user_id IN ?", creatorIDs).Find(&players).Error; err != nil {
			return nil, fmt.Errorf("%w: load creator profiles: %v", ErrDependencyFailure, err)
		}
		for _, p := range players {
			profiles[p.ExternalUserID] = p.Summary()
		}
	}

	out := make([]WaitingMatch, len(matches))
	for i, m := range matches {
		out[i] = WaitingMatch{Match: m, Creator: profiles[m.CreatorID]}
	}
	return out, nil
}

// JoinMatch binds the challenger as opponent, moves the match to playing and
// starts the deadline timer for the creator, who moves first. Concurrent
// joins on one waiting match are serialized so exactly one wins.
func (s *MatchService) JoinMatch(matchID, challengerID string) (*models.Match, error) {
	unlock := s.Locks.Lock(matchID)
	defer unlock()

	var match models.Match
	if err := s.DB.First(&match, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: load match: %v", ErrDependencyFailure, err)
	}

	if match.Status != models.MatchStatusWaiting {
		return nil, ErrInvalidState
	}
	if challengerID == match.CreatorID {
		return nil, fmt.Errorf("%w: cannot join your own match", ErrInvalidParameters)
	}

	challenger, err := s.loadPlayer(challengerID)
	if err != nil {
		return nil, err
	}
	if challenger.Points < match.Stake {
		return nil, ErrInsufficientBalance
	}

	now := time.Now()
	match.OpponentID = &challengerID
	match.Status = models.MatchStatusPlaying
	match.StartedAt = &now
	match.TurnStartedAt = &now
	if err := s.DB.Save(&match).Error; err != nil {
		return nil, fmt.Errorf("%w: join match: %v", ErrDependencyFailure, err)
	}

	s.Timers.Arm(match.ID, match.CreatorID, time.Duration(match.TimeLimitSeconds)*time.Second, s.Turns.AutoPlay)

	s.Hub.Broadcast(models.MatchRoom(match.ID), EventMatchStarted, fiber.Map{
		"match":         match,
		"currentPlayer": match.CreatorID,
		"timeLimit":     match.TimeLimitSeconds,
	})

	return &match, nil
}

// MatchStatus builds the requester-facing view, including whose turn it is
// and the seconds left on the running deadline.
func (s *MatchService) MatchStatus(matchID, requesterID string) (*MatchView, error) {
	var match models.Match
	if err := s.DB.First(&match, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: load match: %v", ErrDependencyFailure, err)
	}
	if !match.IsParticipant(requesterID) {
		return nil, ErrForbidden
	}

	view := &MatchView{
		ID:               match.ID,
		Status:           match.Status,
		Stake:            match.Stake,
		TimeLimitSeconds: match.TimeLimitSeconds,
		CreatorID:        match.CreatorID,
		OpponentID:       match.OpponentID,
		CreatorPlayed:    match.CreatorMove != nil,
		OpponentPlayed:   match.OpponentMove != nil,
		WinnerID:         match.WinnerID,
		Tie:              match.Status == models.MatchStatusFinished && match.WinnerID == nil,
	}

	if match.Status == models.MatchStatusPlaying {
		view.CurrentTurn = match.NextPlayer()

		anchor := match.StartedAt
		if match.TurnStartedAt != nil {
			anchor = match.TurnStartedAt
		}
		if anchor != nil {
			elapsed := time.Since(*anchor).Seconds()
			view.TimeRemainingSeconds = int(math.Max(0, float64(match.TimeLimitSeconds)-elapsed))
		}
	}
	return view, nil
}

// HistoryPage mirrors the paginated history envelope.
type HistoryPage struct {
	Games      []models.GameRecord `json:"games"`
	Pagination Pagination          `json:"pagination"`
}

type Pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Pages int   `json:"pages"`
	Limit int   `json:"limit"`
}

// History returns the requester's game records, newest first.
func (s *MatchService) History(userID string, page, limit int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	var total int64
	if err := s.DB.Model(&models.GameRecord{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("%w: count history: %v", ErrDependencyFailure, err)
	}

	var games []models.GameRecord
	if err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&games).Error; err != nil {
		return nil, fmt.Errorf("%w: load history: %v", ErrDependencyFailure, err)
	}

	return &HistoryPage{
		Games: games,
		Pagination: Pagination{
			Total: total,
			Page:  page,
			Pages: int(math.Ceil(float64(total) / float64(limit))),
			Limit: limit,
		},
	}, nil
}

// Balance returns the player's current point balance.
func (s *MatchService) Balance(userID string) (int64, error) {
	player, err := s.loadPlayer(userID)
	if err != nil {
		return 0, err
	}
	return player.Points, nil
}

func (s *MatchService) loadPlayer(externalUserID string) (*models.Player, error) {
	var player models.Player
	if err := s.DB.Where("external_user_id = ?", externalUserID).First(&player).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown player %s", ErrNotFound, externalUserID)
		}
		return nil, fmt.Errorf("%w: load player: %v", ErrDependencyFailure, err)
	}
	return &player, nil
}

// --- Fiber handlers -------------------------------------------------------

type createMatchRequest struct {
	Stake            int64 `json:"stake"`
	TimeLimitSeconds int   `json:"timeLimitSeconds"`
}

func (s *MatchService) HandleCreateMatch(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req createMatchRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.RespondError(c, fiber.StatusBadRequest, "invalid JSON body")
	}

	match, err := s.CreateMatch(userID, req.Stake, req.TimeLimitSeconds)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Respond(c, fiber.StatusCreated, "match created", match)
}

func (s *MatchService) HandleListMatches(c *fiber.Ctx) error {
	if status := c.Query("status", models.MatchStatusWaiting); status != models.MatchStatusWaiting {
		return utils.RespondError(c, fiber.StatusBadRequest, "only status=waiting is listable")
	}

	matches, err := s.ListWaitingMatches()
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Respond(c, fiber.StatusOK, "waiting matches", matches)
}

func (s *MatchService) HandleJoinMatch(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	match, err := s.JoinMatch(c.Params("id"), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Respond(c, fiber.StatusOK, "match joined", match)
}

func (s *MatchService) HandleSubmitTurn(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	result, err := s.Turns.SubmitTurn(c.Params("id"), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Respond(c, fiber.StatusOK, "turn played", result)
}

func (s *MatchService) HandleGetMatch(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	view, err := s.MatchStatus(c.Params("id"), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Respond(c, fiber.StatusOK, "match status", view)
}

func (s *MatchService) HandleHistory(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 10)

	history, err := s.History(userID, page, limit)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Respond(c, fiber.StatusOK, "game history", history)
}

func (s *MatchService) HandleBalance(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	points, err := s.Balance(userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Respond(c, fiber.StatusOK, "current balance", fiber.Map{"points": points})
}
