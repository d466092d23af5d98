// Package escrow tracks player token balances held by the platform.
//
// Flow:
//  1. Player deposits tokens → available balance credited
//  2. Player enters a duel → stake moved: available → locked
//  3. Duel settles → loser's locked stake transferred to winner's available
//  4. Duel cancelled or expired → locked stake returned to available
//  5. Player withdraws → available balance debited
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ikkii-gg/ikkii-server/internal/syncutil"
)

var (
	ErrAccountNotFound   = errors.New("escrow account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidState      = errors.New("invalid escrow state for this operation")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Entry types recorded in the escrow history.
const (
	EntryDeposit     = "deposit"
	EntryWithdrawal  = "withdrawal"
	EntryLock        = "lock"
	EntryUnlock      = "unlock"
	EntryTransferIn  = "transfer_in"
	EntryTransferOut = "transfer_out"
)

// Account represents a player's balance for a single token mint.
type Account struct {
	UserID    string    `json:"userId"`
	Mint      string    `json:"mint"`
	Available string    `json:"availableBalance"`
	Locked    string    `json:"lockedBalance"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Entry represents a single movement on an account.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Mint      string    `json:"mint"`
	Type      string    `json:"type"` // deposit, withdrawal, lock, unlock, transfer_in, transfer_out
	Amount    string    `json:"amount"`
	Reference string    `json:"reference,omitempty"` // duel ID, tx signature, etc.
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists escrow accounts and entries. Balance-moving methods must be
// atomic per account and never drive a balance negative: available shortfalls
// return ErrInsufficientFunds, locked shortfalls ErrInvalidState.
type Store interface {
	CreateAccount(ctx context.Context, userID, mint string) (*Account, error)
	GetAccount(ctx context.Context, userID, mint string) (*Account, error)
	ListAccounts(ctx context.Context, userID string) ([]*Account, error)
	Credit(ctx context.Context, userID, mint, amount, entryType, reference string) error
	Debit(ctx context.Context, userID, mint, amount, entryType, reference string) error
	LockFunds(ctx context.Context, userID, mint, amount, reference string) error
	UnlockFunds(ctx context.Context, userID, mint, amount, reference string) error
	DebitLocked(ctx context.Context, userID, mint, amount, entryType, reference string) error
	History(ctx context.Context, userID, mint string, limit int) ([]*Entry, error)
}

// Ledger manages player balances.
type Ledger struct {
	store Store
	locks *syncutil.KeyedMutex
}

// New creates a new escrow ledger.
func New(store Store) *Ledger {
	return &Ledger{
		store: store,
		locks: syncutil.NewKeyedMutex(),
	}
}

func acctKey(userID, mint string) string {
	return userID + ":" + mint
}

// CreateAccount ensures a zero-balance account exists for the given user and
// mint. Creating an account that already exists returns the existing account.
func (l *Ledger) CreateAccount(ctx context.Context, userID, mint string) (*Account, error) {
	defer observeOp("create_account")()

	unlock := l.locks.Lock(acctKey(userID, mint))
	defer unlock()

	return l.store.CreateAccount(ctx, userID, mint)
}

// GetAccount returns a player's account for the given mint. A missing account
// reads as zero balances.
func (l *Ledger) GetAccount(ctx context.Context, userID, mint string) (*Account, error) {
	return l.store.GetAccount(ctx, userID, mint)
}

// ListAccounts returns all of a player's accounts across mints.
func (l *Ledger) ListAccounts(ctx context.Context, userID string) ([]*Account, error) {
	return l.store.ListAccounts(ctx, userID)
}

// Deposit credits a player's available balance.
func (l *Ledger) Deposit(ctx context.Context, userID, mint, amount, txRef string) error {
	defer observeOp("deposit")()

	if amt, ok := parseAmount(amount); !ok || amt.Sign() <= 0 {
		return ErrInvalidAmount
	}

	unlock := l.locks.Lock(acctKey(userID, mint))
	defer unlock()

	return l.store.Credit(ctx, userID, mint, amount, EntryDeposit, txRef)
}

// Withdraw debits a player's available balance.
func (l *Ledger) Withdraw(ctx context.Context, userID, mint, amount, txRef string) error {
	defer observeOp("withdraw")()

	if amt, ok := parseAmount(amount); !ok || amt.Sign() <= 0 {
		return ErrInvalidAmount
	}

	unlock := l.locks.Lock(acctKey(userID, mint))
	defer unlock()

	return l.store.Debit(ctx, userID, mint, amount, EntryWithdrawal, txRef)
}

// Lock moves funds from available to locked. Fails with ErrInsufficientFunds
// if the available balance does not cover the amount.
func (l *Ledger) Lock(ctx context.Context, userID, mint, amount, reference string) error {
	defer observeOp("lock")()

	if amt, ok := parseAmount(amount); !ok || amt.Sign() <= 0 {
		return ErrInvalidAmount
	}

	unlock := l.locks.Lock(acctKey(userID, mint))
	defer unlock()

	return l.store.LockFunds(ctx, userID, mint, amount, reference)
}

// Unlock moves funds from locked back to available.
func (l *Ledger) Unlock(ctx context.Context, userID, mint, amount, reference string) error {
	defer observeOp("unlock")()

	if amt, ok := parseAmount(amount); !ok || amt.Sign() <= 0 {
		return ErrInvalidAmount
	}

	unlock := l.locks.Lock(acctKey(userID, mint))
	defer unlock()

	return l.store.UnlockFunds(ctx, userID, mint, amount, reference)
}

// Transfer moves locked funds from one player to another player's available
// balance. Both accounts are locked for the duration; lock order is
// deterministic so concurrent opposing transfers cannot deadlock.
func (l *Ledger) Transfer(ctx context.Context, fromUserID, toUserID, mint, amount, reference string) error {
	defer observeOp("transfer")()

	if amt, ok := parseAmount(amount); !ok || amt.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if fromUserID == toUserID {
		return ErrInvalidState
	}

	unlock := l.locks.LockPair(acctKey(fromUserID, mint), acctKey(toUserID, mint))
	defer unlock()

	if err := l.store.DebitLocked(ctx, fromUserID, mint, amount, EntryTransferOut, reference); err != nil {
		return err
	}

	if err := l.store.Credit(ctx, toUserID, mint, amount, EntryTransferIn, reference); err != nil {
		// Return the debited funds to the sender's locked balance so the
		// two sides stay consistent.
		if compErr := l.restoreLocked(ctx, fromUserID, mint, amount, reference); compErr != nil {
			log.Printf("CRITICAL: transfer compensation failed, funds debited but not credited: from=%s to=%s mint=%s amount=%s ref=%s err=%v",
				fromUserID, toUserID, mint, amount, reference, compErr)
		}
		return fmt.Errorf("failed to credit transfer recipient: %w", err)
	}

	return nil
}

// restoreLocked re-credits then re-locks funds on the sender after a failed
// transfer credit.
func (l *Ledger) restoreLocked(ctx context.Context, userID, mint, amount, reference string) error {
	if err := l.store.Credit(ctx, userID, mint, amount, EntryTransferIn, reference+":compensation"); err != nil {
		return err
	}
	return l.store.LockFunds(ctx, userID, mint, amount, reference+":compensation")
}

// CanCover checks whether a player's available balance covers an amount.
func (l *Ledger) CanCover(ctx context.Context, userID, mint, amount string) (bool, error) {
	amountBig, ok := parseAmount(amount)
	if !ok {
		return false, ErrInvalidAmount
	}

	acct, err := l.store.GetAccount(ctx, userID, mint)
	if err != nil {
		return false, err
	}

	availableBig, _ := parseAmount(acct.Available)
	return availableBig.Cmp(amountBig) >= 0, nil
}

// History returns the most recent entries for a player's account.
func (l *Ledger) History(ctx context.Context, userID, mint string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.History(ctx, userID, mint, limit)
}

// Token amount helpers (9 decimals, SPL convention).

func parseAmount(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0), true
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}
	if whole == "" {
		whole = "0"
	}

	// Pad or trim to 9 decimals
	for len(frac) < 9 {
		frac += "0"
	}
	frac = frac[:9]

	return new(big.Int).SetString(whole+frac, 10)
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	s := amount.String()
	neg := amount.Sign() < 0
	if neg {
		s = s[1:]
	}
	for len(s) < 10 {
		s = "0" + s
	}
	decimal := len(s) - 9
	result := s[:decimal] + "." + s[decimal:]
	result = strings.TrimRight(result, "0")
	result = strings.TrimRight(result, ".")
	if result == "" {
		result = "0"
	}
	if neg {
		result = "-" + result
	}
	return result
}
