package services

import (
	"sync"
	"sync/atomic"
	"testing"

	"truenumber-arena/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startedMatch creates and joins a stake-50 match between alice (100) and
// bob (100).
func startedMatch(t *testing.T, stack *testStack) *models.Match {
	t.Helper()

	seedPlayer(t, stack.db, "alice", "alice", 100)
	seedPlayer(t, stack.db, "bob", "bob", 100)

	created, err := stack.match.CreateMatch("alice", 50, 30)
	require.NoError(t, err)
	joined, err := stack.match.JoinMatch(created.ID, "bob")
	require.NoError(t, err)
	return joined
}

func TestSubmitTurn_DecisiveMatch(t *testing.T) {
	stack := newTestStack(t)
	match := startedMatch(t, stack)

	moves := []int{80, 30}
	var i int
	stack.turns.rng = func(n int) int {
		move := moves[i]
		i++
		return move
	}

	first, err := stack.turns.SubmitTurn(match.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 80, first.Move)
	assert.False(t, first.Finished)
	assert.Equal(t, "bob", first.NextPlayer)

	// The deadline handed off to bob.
	player, armed := stack.timers.Armed(match.ID)
	require.True(t, armed)
	assert.Equal(t, "bob", player)

	second, err := stack.turns.SubmitTurn(match.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, 30, second.Move)
	assert.True(t, second.Finished)
	require.NotNil(t, second.WinnerID)
	assert.Equal(t, "alice", *second.WinnerID)
	assert.False(t, second.Tie)

	_, armed = stack.timers.Armed(match.ID)
	assert.False(t, armed, "finishing the match must cancel the timer")

	var reloaded models.Match
	require.NoError(t, stack.db.First(&reloaded, "id = ?", match.ID).Error)
	assert.Equal(t, models.MatchStatusFinished, reloaded.Status)
	assert.NotNil(t, reloaded.FinishedAt)
	assert.NotNil(t, reloaded.SettledAt)

	assert.EqualValues(t, 150, playerBalance(t, stack.db, "alice"))
	assert.EqualValues(t, 50, playerBalance(t, stack.db, "bob"))
}

func TestSubmitTurn_TieLeavesBalancesUntouched(t *testing.T) {
	stack := newTestStack(t)
	match := startedMatch(t, stack)

	stack.turns.rng = func(n int) int { return 42 }

	_, err := stack.turns.SubmitTurn(match.ID, "alice")
	require.NoError(t, err)
	result, err := stack.turns.SubmitTurn(match.ID, "bob")
	require.NoError(t, err)

	assert.True(t, result.Finished)
	assert.True(t, result.Tie)
	assert.Nil(t, result.WinnerID)

	assert.EqualValues(t, 100, playerBalance(t, stack.db, "alice"))
	assert.EqualValues(t, 100, playerBalance(t, stack.db, "bob"))

	var records int64
	require.NoError(t, stack.db.Model(&models.GameRecord{}).Count(&records).Error)
	assert.Zero(t, records, "ties write no history")

	var reloaded models.Match
	require.NoError(t, stack.db.First(&reloaded, "id = ?", match.ID).Error)
	assert.Nil(t, reloaded.WinnerID)
	assert.NotNil(t, reloaded.SettledAt, "ties still count as settled")
}

func TestSubmitTurn_Rejections(t *testing.T) {
	stack := newTestStack(t)
	seedPlayer(t, stack.db, "alice", "alice", 100)
	seedPlayer(t, stack.db, "bob", "bob", 100)

	waiting, err := stack.match.CreateMatch("alice", 50, 30)
	require.NoError(t, err)

	_, err = stack.turns.SubmitTurn("missing", "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = stack.turns.SubmitTurn(waiting.ID, "alice")
	assert.ErrorIs(t, err, ErrInvalidState, "no turns while waiting")

	_, err = stack.match.JoinMatch(waiting.ID, "bob")
	require.NoError(t, err)

	_, err = stack.turns.SubmitTurn(waiting.ID, "stranger")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = stack.turns.SubmitTurn(waiting.ID, "alice")
	require.NoError(t, err)

	_, err = stack.turns.SubmitTurn(waiting.ID, "alice")
	assert.ErrorIs(t, err, ErrTurnAlreadyTaken)
}

func TestSubmitTurn_ManualMovePreventsAutoPlay(t *testing.T) {
	stack := newTestStack(t)
	match := startedMatch(t, stack)

	stack.turns.rng = func(n int) int { return 7 }

	_, err := stack.turns.SubmitTurn(match.ID, "alice")
	require.NoError(t, err)

	// A late timer fire for alice must change nothing.
	stack.turns.AutoPlay(match.ID, "alice")

	var reloaded models.Match
	require.NoError(t, stack.db.First(&reloaded, "id = ?", match.ID).Error)
	require.NotNil(t, reloaded.CreatorMove)
	assert.Equal(t, 7, *reloaded.CreatorMove)
	assert.Nil(t, reloaded.OpponentMove)
	assert.Equal(t, models.MatchStatusPlaying, reloaded.Status)

	// And the deadline moved on to bob.
	player, armed := stack.timers.Armed(match.ID)
	require.True(t, armed)
	assert.Equal(t, "bob", player)
}

func TestAutoPlay_FinishesMatchLikeManualPlay(t *testing.T) {
	stack := newTestStack(t)
	match := startedMatch(t, stack)

	moves := []int{10, 90}
	var i int
	stack.turns.rng = func(n int) int {
		move := moves[i]
		i++
		return move
	}

	_, err := stack.turns.SubmitTurn(match.ID, "alice")
	require.NoError(t, err)

	// Opponent never shows up: the deadline path plays for them.
	stack.turns.AutoPlay(match.ID, "bob")

	var reloaded models.Match
	require.NoError(t, stack.db.First(&reloaded, "id = ?", match.ID).Error)
	assert.Equal(t, models.MatchStatusFinished, reloaded.Status)
	require.NotNil(t, reloaded.OpponentMove)
	assert.Equal(t, 90, *reloaded.OpponentMove)
	require.NotNil(t, reloaded.WinnerID)
	assert.Equal(t, "bob", *reloaded.WinnerID)

	assert.EqualValues(t, 50, playerBalance(t, stack.db, "alice"))
	assert.EqualValues(t, 150, playerBalance(t, stack.db, "bob"))

	var records []models.GameRecord
	require.NoError(t, stack.db.Find(&records).Error)
	assert.Len(t, records, 2, "a timed-out match settles exactly like a played one")
}

func TestSubmitTurn_ConcurrentRaceSettlesOnce(t *testing.T) {
	stack := newTestStack(t)
	match := startedMatch(t, stack)

	// Distinct values per call keep the outcome decisive.
	var counter int32
	stack.turns.rng = func(n int) int {
		return int(atomic.AddInt32(&counter, 1))
	}

	// Manual submissions and timer fires race for the creator slot; the
	// opponent slot is contended by manual submissions alone.
	const attempts = 8
	var wg sync.WaitGroup
	var aliceManualWins, bobWins int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := stack.turns.SubmitTurn(match.ID, "alice"); err == nil {
				atomic.AddInt32(&aliceManualWins, 1)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := stack.turns.SubmitTurn(match.ID, "bob"); err == nil {
				atomic.AddInt32(&bobWins, 1)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			stack.turns.AutoPlay(match.ID, "alice")
		}()
	}
	wg.Wait()

	// A timer fire may legitimately claim the creator slot before any manual
	// submission does, so the manual path wins at most once, never more.
	assert.LessOrEqual(t, atomic.LoadInt32(&aliceManualWins), int32(1))
	assert.EqualValues(t, 1, atomic.LoadInt32(&bobWins), "exactly one submission may win the opponent slot")

	var reloaded models.Match
	require.NoError(t, stack.db.First(&reloaded, "id = ?", match.ID).Error)
	assert.Equal(t, models.MatchStatusFinished, reloaded.Status)
	require.NotNil(t, reloaded.CreatorMove, "exactly one contender filled the creator slot")
	require.NotNil(t, reloaded.OpponentMove)

	var records int64
	require.NoError(t, stack.db.Model(&models.GameRecord{}).Count(&records).Error)
	assert.EqualValues(t, 2, records, "exactly one record pair despite the race")

	total := playerBalance(t, stack.db, "alice") + playerBalance(t, stack.db, "bob")
	assert.EqualValues(t, 200, total, "settlement conserves the point supply")
}

func TestResumeTimers(t *testing.T) {
	stack := newTestStack(t)
	match := startedMatch(t, stack)
	stack.turns.rng = func(n int) int { return 55 }
	_, err := stack.turns.SubmitTurn(match.ID, "alice")
	require.NoError(t, err)

	// Simulate a restart: all in-process timers are gone.
	stack.timers.Stop()
	_, armed := stack.timers.Armed(match.ID)
	require.False(t, armed)

	require.NoError(t, stack.turns.ResumeTimers())

	player, armed := stack.timers.Armed(match.ID)
	require.True(t, armed)
	assert.Equal(t, "bob", player, "resumed deadline targets the player yet to move")
}
