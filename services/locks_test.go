package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchLocker_SerializesSameMatch(t *testing.T) {
	locker := NewMatchLocker()

	// counter is guarded only by the lock under test.
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock("m1")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestMatchLocker_ReleasesIdleEntries(t *testing.T) {
	locker := NewMatchLocker()

	unlock1 := locker.Lock("m1")
	unlock2 := locker.Lock("m2")
	assert.Equal(t, 2, locker.Len())

	unlock1()
	unlock2()
	assert.Zero(t, locker.Len(), "idle matches must not retain lock entries")
}

func TestMatchLocker_WaiterKeepsEntryAlive(t *testing.T) {
	locker := NewMatchLocker()

	unlock := locker.Lock("m1")

	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		u := locker.Lock("m1")
		u()
	}()

	unlock()
	<-acquired

	assert.Zero(t, locker.Len())
}
