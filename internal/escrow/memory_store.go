package escrow

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ikkii-gg/ikkii-server/internal/idgen"
)

// MemoryStore implements Store in memory for demo/testing.
type MemoryStore struct {
	accounts map[string]*Account // key: "userID:mint"
	entries  []*Entry
	mu       sync.RWMutex
}

// NewMemoryStore creates an in-memory escrow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
	}
}

func (s *MemoryStore) CreateAccount(_ context.Context, userID, mint string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.getOrCreate(userID, mint)
	cp := *acct
	return &cp, nil
}

func (s *MemoryStore) GetAccount(_ context.Context, userID, mint string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if acct, ok := s.accounts[acctKey(userID, mint)]; ok {
		cp := *acct
		return &cp, nil
	}
	return &Account{
		UserID:    userID,
		Mint:      mint,
		Available: "0",
		Locked:    "0",
		UpdatedAt: time.Now(),
	}, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context, userID string) ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Account
	prefix := userID + ":"
	for k, v := range s.accounts {
		if strings.HasPrefix(k, prefix) {
			cp := *v
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStore) Credit(_ context.Context, userID, mint, amount, entryType, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.getOrCreate(userID, mint)

	avail, _ := parseAmount(acct.Available)
	add, _ := parseAmount(amount)
	acct.Available = formatAmount(new(big.Int).Add(avail, add))
	acct.UpdatedAt = time.Now()

	s.appendEntry(userID, mint, entryType, amount, reference)
	return nil
}

func (s *MemoryStore) Debit(_ context.Context, userID, mint, amount, entryType, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[acctKey(userID, mint)]
	if !ok {
		return ErrInsufficientFunds
	}

	avail, _ := parseAmount(acct.Available)
	sub, _ := parseAmount(amount)
	if avail.Cmp(sub) < 0 {
		return ErrInsufficientFunds
	}

	acct.Available = formatAmount(new(big.Int).Sub(avail, sub))
	acct.UpdatedAt = time.Now()

	s.appendEntry(userID, mint, entryType, amount, reference)
	return nil
}

func (s *MemoryStore) LockFunds(_ context.Context, userID, mint, amount, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[acctKey(userID, mint)]
	if !ok {
		return ErrInsufficientFunds
	}

	avail, _ := parseAmount(acct.Available)
	locked, _ := parseAmount(acct.Locked)
	amt, _ := parseAmount(amount)
	if avail.Cmp(amt) < 0 {
		return ErrInsufficientFunds
	}

	acct.Available = formatAmount(new(big.Int).Sub(avail, amt))
	acct.Locked = formatAmount(new(big.Int).Add(locked, amt))
	acct.UpdatedAt = time.Now()

	s.appendEntry(userID, mint, EntryLock, amount, reference)
	return nil
}

func (s *MemoryStore) UnlockFunds(_ context.Context, userID, mint, amount, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[acctKey(userID, mint)]
	if !ok {
		return ErrInvalidState
	}

	avail, _ := parseAmount(acct.Available)
	locked, _ := parseAmount(acct.Locked)
	amt, _ := parseAmount(amount)
	if locked.Cmp(amt) < 0 {
		return ErrInvalidState
	}

	acct.Locked = formatAmount(new(big.Int).Sub(locked, amt))
	acct.Available = formatAmount(new(big.Int).Add(avail, amt))
	acct.UpdatedAt = time.Now()

	s.appendEntry(userID, mint, EntryUnlock, amount, reference)
	return nil
}

func (s *MemoryStore) DebitLocked(_ context.Context, userID, mint, amount, entryType, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[acctKey(userID, mint)]
	if !ok {
		return ErrInvalidState
	}

	locked, _ := parseAmount(acct.Locked)
	sub, _ := parseAmount(amount)
	if locked.Cmp(sub) < 0 {
		return ErrInvalidState
	}

	acct.Locked = formatAmount(new(big.Int).Sub(locked, sub))
	acct.UpdatedAt = time.Now()

	s.appendEntry(userID, mint, entryType, amount, reference)
	return nil
}

func (s *MemoryStore) History(_ context.Context, userID, mint string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Entry
	for i := len(s.entries) - 1; i >= 0 && len(result) < limit; i-- {
		e := s.entries[i]
		if e.UserID == userID && e.Mint == mint {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}

// getOrCreate must be called with the write lock held.
func (s *MemoryStore) getOrCreate(userID, mint string) *Account {
	key := acctKey(userID, mint)
	acct, ok := s.accounts[key]
	if !ok {
		now := time.Now()
		acct = &Account{
			UserID:    userID,
			Mint:      mint,
			Available: "0",
			Locked:    "0",
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.accounts[key] = acct
	}
	return acct
}

// appendEntry must be called with the write lock held.
func (s *MemoryStore) appendEntry(userID, mint, entryType, amount, reference string) {
	s.entries = append(s.entries, &Entry{
		ID:        idgen.WithPrefix("ent_"),
		UserID:    userID,
		Mint:      mint,
		Type:      entryType,
		Amount:    amount,
		Reference: reference,
		CreatedAt: time.Now(),
	})
}
