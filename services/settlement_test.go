package services

import (
	"testing"
	"time"

	"truenumber-arena/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finishedMatch(winnerID *string, creatorMove, opponentMove int) *models.Match {
	bob := "bob"
	now := time.Now()
	return &models.Match{
		ID:               "m1",
		CreatorID:        "alice",
		OpponentID:       &bob,
		Stake:            50,
		TimeLimitSeconds: 30,
		Status:           models.MatchStatusFinished,
		CreatorMove:      &creatorMove,
		OpponentMove:     &opponentMove,
		WinnerID:         winnerID,
		StartedAt:        &now,
		FinishedAt:       &now,
	}
}

func TestSettle_DecisiveTransfersStake(t *testing.T) {
	db := newTestDB(t)
	seedPlayer(t, db, "alice", "alice", 100)
	seedPlayer(t, db, "bob", "bob", 100)

	alice := "alice"
	match := finishedMatch(&alice, 80, 30)
	require.NoError(t, db.Create(match).Error)

	svc := NewSettlementService(db)
	require.NoError(t, svc.Settle(match))
	assert.NotNil(t, match.SettledAt)

	assert.EqualValues(t, 150, playerBalance(t, db, "alice"))
	assert.EqualValues(t, 50, playerBalance(t, db, "bob"))

	var records []models.GameRecord
	require.NoError(t, db.Order("result DESC").Find(&records).Error)
	require.Len(t, records, 2)

	win, lose := records[0], records[1]
	assert.Equal(t, models.ResultWin, win.Result)
	assert.Equal(t, "alice", win.UserID)
	assert.Equal(t, 80, win.Number)
	assert.EqualValues(t, 50, win.PointsChange)
	assert.EqualValues(t, 150, win.BalanceAfter)
	assert.Equal(t, "m1", win.MatchID)

	assert.Equal(t, models.ResultLose, lose.Result)
	assert.Equal(t, "bob", lose.UserID)
	assert.Equal(t, 30, lose.Number)
	assert.EqualValues(t, -50, lose.PointsChange)
	assert.EqualValues(t, 50, lose.BalanceAfter)
}

func TestSettle_OpponentWinCanGoNegative(t *testing.T) {
	db := newTestDB(t)
	seedPlayer(t, db, "alice", "alice", 20)
	seedPlayer(t, db, "bob", "bob", 100)

	bob := "bob"
	match := finishedMatch(&bob, 10, 90)
	require.NoError(t, db.Create(match).Error)

	require.NoError(t, NewSettlementService(db).Settle(match))

	// No floor: a losing creator can be driven below zero.
	assert.EqualValues(t, -30, playerBalance(t, db, "alice"))
	assert.EqualValues(t, 150, playerBalance(t, db, "bob"))
}

func TestSettle_TieIsANoOp(t *testing.T) {
	db := newTestDB(t)
	seedPlayer(t, db, "alice", "alice", 100)
	seedPlayer(t, db, "bob", "bob", 100)

	match := finishedMatch(nil, 42, 42)
	require.NoError(t, db.Create(match).Error)

	require.NoError(t, NewSettlementService(db).Settle(match))
	assert.NotNil(t, match.SettledAt)

	assert.EqualValues(t, 100, playerBalance(t, db, "alice"))
	assert.EqualValues(t, 100, playerBalance(t, db, "bob"))

	var records int64
	require.NoError(t, db.Model(&models.GameRecord{}).Count(&records).Error)
	assert.Zero(t, records)
}

func TestSettle_AtMostOnce(t *testing.T) {
	db := newTestDB(t)
	seedPlayer(t, db, "alice", "alice", 100)
	seedPlayer(t, db, "bob", "bob", 100)

	alice := "alice"
	match := finishedMatch(&alice, 80, 30)
	require.NoError(t, db.Create(match).Error)

	svc := NewSettlementService(db)
	require.NoError(t, svc.Settle(match))

	// A second call through a fresh copy (as the reconciliation job does)
	// must not pay out again.
	var fresh models.Match
	require.NoError(t, db.First(&fresh, "id = ?", match.ID).Error)
	require.NoError(t, svc.Settle(&fresh))

	assert.EqualValues(t, 150, playerBalance(t, db, "alice"))
	var records int64
	require.NoError(t, db.Model(&models.GameRecord{}).Count(&records).Error)
	assert.EqualValues(t, 2, records)
}

func TestSettle_RejectsUnfinishedMatch(t *testing.T) {
	db := newTestDB(t)
	match := &models.Match{
		ID:        "m1",
		CreatorID: "alice",
		Stake:     50,
		Status:    models.MatchStatusPlaying,
	}
	require.NoError(t, db.Create(match).Error)

	err := NewSettlementService(db).Settle(match)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSettle_DependencyFailureRollsBackAndStaysRetryable(t *testing.T) {
	db := newTestDB(t)
	// Loser is missing from the balance store entirely.
	seedPlayer(t, db, "alice", "alice", 100)

	alice := "alice"
	match := finishedMatch(&alice, 80, 30)
	require.NoError(t, db.Create(match).Error)

	svc := NewSettlementService(db)
	err := svc.Settle(match)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyFailure)

	// Winner credit must have been rolled back with the failed transaction
	// and the match left unsettled for reconciliation.
	assert.EqualValues(t, 100, playerBalance(t, db, "alice"))

	var fresh models.Match
	require.NoError(t, db.First(&fresh, "id = ?", match.ID).Error)
	assert.Equal(t, models.MatchStatusFinished, fresh.Status, "the recorded result is never rolled back")
	assert.Nil(t, fresh.SettledAt)

	// Once the store recovers, the retry succeeds.
	seedPlayer(t, db, "bob", "bob", 100)
	require.NoError(t, svc.Settle(&fresh))
	assert.EqualValues(t, 150, playerBalance(t, db, "alice"))
	assert.EqualValues(t, 50, playerBalance(t, db, "bob"))
}
