package services

import (
	"testing"

	"truenumber-arena/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory database migrated with the full schema.
// A single connection keeps sqlite happy under concurrent test traffic.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Player{}, &models.Match{}, &models.GameRecord{}))
	return db
}

type testStack struct {
	db     *gorm.DB
	locks  *MatchLocker
	timers *TimerRegistry
	hub    *Hub
	turns  *TurnService
	match  *MatchService
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	db := newTestDB(t)
	locks := NewMatchLocker()
	timers := NewTimerRegistry()
	hub := NewHub()
	settlement := NewSettlementService(db)
	turns := NewTurnService(db, locks, timers, hub, settlement)
	match := NewMatchService(db, locks, timers, hub, turns)

	t.Cleanup(timers.Stop)

	return &testStack{db: db, locks: locks, timers: timers, hub: hub, turns: turns, match: match}
}

func seedPlayer(t *testing.T, db *gorm.DB, externalID, username string, points int64) {
	t.Helper()

	require.NoError(t, db.Create(&models.Player{
		ID:             uuid.NewString(),
		ExternalUserID: externalID,
		Username:       username,
		Role:           "gamer",
		Points:         points,
	}).Error)
}

func playerBalance(t *testing.T, db *gorm.DB, externalID string) int64 {
	t.Helper()

	var player models.Player
	require.NoError(t, db.Where("external_user_id = ?", externalID).First(&player).Error)
	return player.Points
}
