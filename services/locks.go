package services

import "sync"

// MatchLocker serializes every mutating operation (join, turn submission,
// timer fire) on a single match id so read-decide-write is atomic per match.
// Operations on different matches never contend. Entries are reference
// counted: the last holder to unlock removes the entry, so idle matches
// retain no memory between operations.
type MatchLocker struct {
	mu    sync.Mutex
	locks map[string]*matchLock
}

type matchLock struct {
	mu   sync.Mutex
	refs int
}

func NewMatchLocker() *MatchLocker {
	return &MatchLocker{locks: make(map[string]*matchLock)}
}

// Lock acquires the per-match mutex and returns its unlock func. Waiters keep
// the entry alive, so two contenders always serialize on the same mutex.
func (l *MatchLocker) Lock(matchID string) func() {
	l.mu.Lock()
	m, ok := l.locks[matchID]
	if !ok {
		m = &matchLock{}
		l.locks[matchID] = m
	}
	m.refs++
	l.mu.Unlock()

	m.mu.Lock()
	return func() {
		m.mu.Unlock()

		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, matchID)
		}
		l.mu.Unlock()
	}
}

// Len reports how many matches currently hold a lock entry.
func (l *MatchLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
