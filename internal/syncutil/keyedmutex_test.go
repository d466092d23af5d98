package syncutil

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedMutex_ExcludesSameKey(t *testing.T) {
	var km KeyedMutex

	unlock := km.Lock("duel_1")

	acquired := make(chan struct{})
	go func() {
		u := km.Lock("duel_1")
		u()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock on the same key acquired while first was held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock never acquired after unlock")
	}
}

func TestKeyedMutex_LockPair_SameKey(t *testing.T) {
	var km KeyedMutex

	// Same key both sides must not self-deadlock.
	unlock := km.LockPair("acct:a", "acct:a")
	unlock()

	unlock = km.Lock("acct:a")
	unlock()
}

func TestKeyedMutex_LockPair_NoDeadlockOnReversedOrder(t *testing.T) {
	var km KeyedMutex

	// Hammer two overlapping pairs from both directions. With unordered
	// locking this deadlocks almost immediately.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				unlock := km.LockPair("acct:a", "acct:b")
				unlock()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				unlock := km.LockPair("acct:b", "acct:a")
				unlock()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("LockPair deadlocked")
	}
}

func TestKeyedMutex_CountersUnderContention(t *testing.T) {
	var km KeyedMutex

	keys := []string{"a", "b", "c", "d"}
	counters := make([]int, len(keys))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			idx := n % len(keys)
			for j := 0; j < 1000; j++ {
				unlock := km.Lock(keys[idx])
				counters[idx]++
				unlock()
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, v := range counters {
		total += v
	}
	if total != 8000 {
		t.Errorf("expected 8000 total increments, got %d", total)
	}
}
