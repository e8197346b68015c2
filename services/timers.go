package services

import (
	"log"
	"sync"
	"time"
)

// TimerRegistry owns the per-match deadline timers. At most one timer is
// armed per match: arming replaces the previous one, finishing a match
// cancels it. Timers are in-process only and do not survive a restart;
// main re-arms fresh ones for every playing match at startup.
type TimerRegistry struct {
	mu     sync.Mutex
	gen    uint64
	timers map[string]*deadlineTimer
}

type deadlineTimer struct {
	playerID string
	gen      uint64
	timer    *time.Timer
}

func NewTimerRegistry() *TimerRegistry {
	return &TimerRegistry{timers: make(map[string]*deadlineTimer)}
}

// Arm schedules fire(matchID, playerID) after d, replacing any timer already
// armed for the match. The generation check makes a stale fire racing with
// Cancel or a re-Arm a guaranteed no-op.
func (r *TimerRegistry) Arm(matchID, playerID string, d time.Duration, fire func(matchID, playerID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.timers[matchID]; ok {
		prev.timer.Stop()
	}

	r.gen++
	gen := r.gen
	dt := &deadlineTimer{playerID: playerID, gen: gen}
	dt.timer = time.AfterFunc(d, func() {
		if !r.claim(matchID, gen) {
			return
		}
		log.Printf("[TIMER] ⏰ Deadline expired for match %s, auto-playing for %s", matchID, playerID)
		fire(matchID, playerID)
	})
	r.timers[matchID] = dt
}

// claim removes the timer entry if it still belongs to this generation.
func (r *TimerRegistry) claim(matchID string, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.timers[matchID]
	if !ok || cur.gen != gen {
		return false
	}
	delete(r.timers, matchID)
	return true
}

// Cancel stops the armed timer for a match, if any.
func (r *TimerRegistry) Cancel(matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if dt, ok := r.timers[matchID]; ok {
		dt.timer.Stop()
		delete(r.timers, matchID)
	}
}

// Armed reports the player an active timer is waiting on.
func (r *TimerRegistry) Armed(matchID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dt, ok := r.timers[matchID]
	if !ok {
		return "", false
	}
	return dt.playerID, true
}

// Stop cancels every armed timer (shutdown path).
func (r *TimerRegistry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, dt := range r.timers {
		dt.timer.Stop()
		delete(r.timers, id)
	}
}
