// services/scheduler.go
package services

import (
	"log"
	"time"

	"truenumber-arena/models"

	"github.com/go-co-op/gocron/v2"
)

// StartMaintenanceScheduler runs the two operator jobs:
//   - every minute, retry settlement for finished-but-unsettled decisive
//     matches and raise an alert for each one found;
//   - every ten minutes, flag waiting matches older than waitingTTL.
func (s *MatchService) StartMaintenanceScheduler(waitingTTL time.Duration) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			var matches []models.Match
			err := s.DB.Where("status = ? AND settled_at IS NULL", models.MatchStatusFinished).
				Find(&matches).Error
			if err != nil {
				log.Printf("[Scheduler] DB error scanning unsettled matches: %v", err)
				return
			}

			for _, m := range matches {
				m := m
				log.Printf("[Scheduler] 🚨 ALERT: match %s finished at %v but unsettled, retrying", m.ID, m.FinishedAt)
				if err := s.Turns.Settlement.Settle(&m); err != nil {
					log.Printf("[Scheduler] Retry settlement for match %s failed: %v", m.ID, err)
				} else {
					log.Printf("✅ Reconciled settlement for match: %s", m.ID)
				}
			}
		}),
	)

	_, _ = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			cutoff := time.Now().Add(-waitingTTL)
			var stale []models.Match
			err := s.DB.Where("status = ? AND created_at < ?", models.MatchStatusWaiting, cutoff).
				Find(&stale).Error
			if err != nil {
				log.Printf("[Scheduler] DB error scanning stale matches: %v", err)
				return
			}
			for _, m := range stale {
				log.Printf("[Scheduler] ⚠️ Waiting match %s (stake %d) has had no challenger since %v", m.ID, m.Stake, m.CreatedAt)
			}
		}),
	)
}
