// Package syncutil provides keyed mutual-exclusion primitives used by the
// duel registry (per-duel transitions) and the escrow ledger (per-account
// balance mutations).
package syncutil

import (
	"hash/fnv"
	"sync"
)

// KeyedMutex provides a fixed-size pool of mutexes keyed by string.
// Unlike sync.Map-based per-key locks, this uses bounded memory regardless
// of how many keys are seen, at the cost of occasional false sharing between
// keys that hash to the same shard.
type KeyedMutex struct {
	shards [256]sync.Mutex
}

// NewKeyedMutex creates a keyed mutex. The zero value is also usable.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{}
}

// Lock acquires the mutex for the given key and returns an unlock function.
func (m *KeyedMutex) Lock(key string) func() {
	mu := m.shard(key)
	mu.Lock()
	return mu.Unlock
}

// LockPair acquires the mutexes for two keys in a deterministic order and
// returns a single unlock function. Callers that mutate two entities at once
// (an escrow transfer touches two accounts) must use this instead of two
// Lock calls, otherwise two settlements with overlapping participants can
// deadlock against each other.
//
// Keys that hash to the same shard are locked once.
func (m *KeyedMutex) LockPair(a, b string) func() {
	ia, ib := m.shardIdx(a), m.shardIdx(b)
	if ia == ib {
		mu := &m.shards[ia]
		mu.Lock()
		return mu.Unlock
	}
	if ia > ib {
		ia, ib = ib, ia
	}
	first, second := &m.shards[ia], &m.shards[ib]
	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}

func (m *KeyedMutex) shard(key string) *sync.Mutex {
	return &m.shards[m.shardIdx(key)]
}

func (m *KeyedMutex) shardIdx(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % 256
}
