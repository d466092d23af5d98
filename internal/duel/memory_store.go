package duel

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ikkii-gg/ikkii-server/internal/pagination"
)

// MemoryStore implements Store in memory for demo/testing.
type MemoryStore struct {
	duels map[string]*Duel
	mu    sync.RWMutex
}

// NewMemoryStore creates an in-memory duel store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		duels: make(map[string]*Duel),
	}
}

func (s *MemoryStore) Create(_ context.Context, duel *Duel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *duel
	s.duels[duel.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Duel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	duel, ok := s.duels[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *duel
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, duel *Duel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.duels[duel.ID]; !ok {
		return ErrNotFound
	}
	cp := *duel
	s.duels[duel.ID] = &cp
	return nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status Status, after *pagination.Cursor, limit int) ([]*Duel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Duel
	for _, d := range s.duels {
		if d.Status == status && beforeCursor(d, after) {
			cp := *d
			result = append(result, &cp)
		}
	}
	sortNewestFirst(result)
	return truncate(result, limit), nil
}

func (s *MemoryStore) ListByPlayer(_ context.Context, wallet string, after *pagination.Cursor, limit int) ([]*Duel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Duel
	for _, d := range s.duels {
		if d.IsParticipant(wallet) && beforeCursor(d, after) {
			cp := *d
			result = append(result, &cp)
		}
	}
	sortNewestFirst(result)
	return truncate(result, limit), nil
}

// beforeCursor reports whether d sorts strictly after the cursor position in
// newest-first order, i.e. is older than (createdAt, id).
func beforeCursor(d *Duel, after *pagination.Cursor) bool {
	if after == nil {
		return true
	}
	if !d.CreatedAt.Equal(after.CreatedAt) {
		return d.CreatedAt.Before(after.CreatedAt)
	}
	return d.ID < after.ID
}

func (s *MemoryStore) ListExpired(_ context.Context, before time.Time, limit int) ([]*Duel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Duel
	for _, d := range s.duels {
		if d.Status == StatusOpen && !d.ExpiresAt.After(before) {
			cp := *d
			result = append(result, &cp)
		}
	}
	sortNewestFirst(result)
	return truncate(result, limit), nil
}

func sortNewestFirst(duels []*Duel) {
	sort.Slice(duels, func(i, j int) bool {
		if !duels[i].CreatedAt.Equal(duels[j].CreatedAt) {
			return duels[i].CreatedAt.After(duels[j].CreatedAt)
		}
		return duels[i].ID > duels[j].ID
	})
}

func truncate(duels []*Duel, limit int) []*Duel {
	if limit > 0 && len(duels) > limit {
		return duels[:limit]
	}
	return duels
}
