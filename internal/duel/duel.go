// Package duel owns the wager lifecycle between two players.
//
// Flow:
//  1. Player1 creates a duel → stake locked, status OPEN
//  2. Player2 joins → stake locked, status ACTIVE
//  3. Both players submit the winner → agreement settles, disagreement disputes
//  4. Disputed duels are resolved by the verification service
//  5. Expired OPEN duels are cancelled by the sweeper, stake returned
package duel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/ikkii-gg/ikkii-server/internal/idgen"
	"github.com/ikkii-gg/ikkii-server/internal/metrics"
	"github.com/ikkii-gg/ikkii-server/internal/pagination"
	"github.com/ikkii-gg/ikkii-server/internal/syncutil"
	"github.com/ikkii-gg/ikkii-server/internal/traces"
	"github.com/ikkii-gg/ikkii-server/internal/validation"
)

var (
	ErrNotFound         = errors.New("duel not found")
	ErrInvalidState     = errors.New("invalid duel status for this operation")
	ErrUnauthorized     = errors.New("not a participant of this duel")
	ErrSelfPlay         = errors.New("cannot play against yourself")
	ErrAlreadySubmitted = errors.New("result already submitted")
	ErrValidation       = errors.New("validation failed")

	// ErrInsufficientFunds is returned (possibly wrapped) by LedgerService
	// implementations when a stake lock cannot be covered.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Status represents the state of a duel.
type Status string

const (
	StatusOpen      Status = "OPEN"      // Created, waiting for an opponent
	StatusActive    Status = "ACTIVE"    // Both players in, stakes locked
	StatusDisputed  Status = "DISPUTED"  // Submitted winners disagree
	StatusSettled   Status = "SETTLED"   // Winner determined, stakes paid out
	StatusCancelled Status = "CANCELLED" // Cancelled or expired, stake returned
)

// DefaultExpiry is how long an OPEN duel waits for an opponent.
const DefaultExpiry = 30 * time.Minute

// Duel represents a two-player staked wager.
type Duel struct {
	ID               string    `json:"id"`
	Player1          string    `json:"player1"`
	Player2          string    `json:"player2,omitempty"`
	Stake            string    `json:"stakeAmount"`
	TokenMint        string    `json:"tokenMint"`
	Status           Status    `json:"status"`
	Player1Submitted string    `json:"player1SubmittedWinner,omitempty"`
	Player2Submitted string    `json:"player2SubmittedWinner,omitempty"`
	Winner           string    `json:"winner,omitempty"`
	GameID           string    `json:"gameId,omitempty"`
	ExpiresAt        time.Time `json:"expiresAt"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// IsTerminal returns true if the duel is in a final state.
func (d *Duel) IsTerminal() bool {
	switch d.Status {
	case StatusSettled, StatusCancelled:
		return true
	}
	return false
}

// IsParticipant returns true if the wallet is one of the duel's players.
func (d *Duel) IsParticipant(wallet string) bool {
	return wallet == d.Player1 || (d.Player2 != "" && wallet == d.Player2)
}

// Store persists duels. Terminal duels are kept for history, never deleted.
// List results are ordered newest first; a non-nil cursor resumes strictly
// after the (createdAt, id) position it encodes.
type Store interface {
	Create(ctx context.Context, duel *Duel) error
	Get(ctx context.Context, id string) (*Duel, error)
	Update(ctx context.Context, duel *Duel) error
	ListByStatus(ctx context.Context, status Status, after *pagination.Cursor, limit int) ([]*Duel, error)
	ListByPlayer(ctx context.Context, wallet string, after *pagination.Cursor, limit int) ([]*Duel, error)
	ListExpired(ctx context.Context, before time.Time, limit int) ([]*Duel, error)
}

// LedgerService abstracts escrow operations so duel doesn't import escrow.
type LedgerService interface {
	Lock(ctx context.Context, userID, mint, amount, reference string) error
	Unlock(ctx context.Context, userID, mint, amount, reference string) error
	Transfer(ctx context.Context, fromUserID, toUserID, mint, amount, reference string) error
}

// Verifier is notified when a duel enters DISPUTED. Implementations must not
// block: the notification fires after the duel's mutex is released and its
// eventual outcome arrives via Service.ResolveDispute.
type Verifier interface {
	NotifyDispute(duelID string)
}

// EventEmitter publishes duel lifecycle events for realtime subscribers.
type EventEmitter interface {
	EmitDuelEvent(event string, duel *Duel)
}

// CreateRequest contains the parameters for creating a duel.
type CreateRequest struct {
	Player1   string `json:"player1" binding:"required"`
	Stake     string `json:"stakeAmount" binding:"required"`
	TokenMint string `json:"tokenMint"` // Defaults to the platform mint when omitted
	GameID    string `json:"gameId"`
	ExpiresIn string `json:"expiresIn"` // Duration string, e.g. "30m", "1h"
}

// SubmitOutcome is the result of a SubmitResult call.
type SubmitOutcome struct {
	Duel     *Duel `json:"duel"`
	Resolved bool  `json:"resolved"`
}

// Service implements the duel lifecycle and settlement logic.
type Service struct {
	store         Store
	ledger        LedgerService
	verifier      Verifier
	emitter       EventEmitter
	logger        *slog.Logger
	locks         *syncutil.KeyedMutex
	defaultExpiry time.Duration
	defaultMint   string
}

// NewService creates a new duel service.
func NewService(store Store, ledger LedgerService, logger *slog.Logger) *Service {
	return &Service{
		store:         store,
		ledger:        ledger,
		logger:        logger,
		locks:         syncutil.NewKeyedMutex(),
		defaultExpiry: DefaultExpiry,
	}
}

// WithDefaults overrides the expiry applied when a create request omits
// expiresIn, and the token mint assumed when it omits tokenMint.
func (s *Service) WithDefaults(expiry time.Duration, mint string) *Service {
	if expiry > 0 {
		s.defaultExpiry = expiry
	}
	s.defaultMint = mint
	return s
}

// WithVerifier adds a dispute verifier.
func (s *Service) WithVerifier(v Verifier) *Service {
	s.verifier = v
	return s
}

// WithEmitter adds a lifecycle event emitter.
func (s *Service) WithEmitter(e EventEmitter) *Service {
	s.emitter = e
	return s
}

// Create creates a new duel and locks the creator's stake. The stake lock and
// the duel insert are one unit: if the insert fails the lock is reversed.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Duel, error) {
	ctx, span := traces.StartSpan(ctx, "duel.Create",
		traces.Wallet(req.Player1), traces.Mint(req.TokenMint), traces.Amount(req.Stake))
	defer span.End()

	if req.TokenMint == "" {
		req.TokenMint = s.defaultMint
	}
	if errs := validation.Validate(
		validation.ValidWallet("player1", req.Player1),
		validation.ValidMint("tokenMint", req.TokenMint),
		validation.Required("stakeAmount", req.Stake),
		validation.ValidAmount("stakeAmount", req.Stake),
	); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrValidation, errs.Error())
	}

	expiry := s.defaultExpiry
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%w: expiresIn must be a positive duration", ErrValidation)
		}
		expiry = d
	}

	now := time.Now()
	duel := &Duel{
		ID:        idgen.WithPrefix("duel_"),
		Player1:   req.Player1,
		Stake:     req.Stake,
		TokenMint: req.TokenMint,
		Status:    StatusOpen,
		GameID:    req.GameID,
		ExpiresAt: now.Add(expiry),
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Lock creator's stake before the duel exists
	if err := s.ledger.Lock(ctx, duel.Player1, duel.TokenMint, duel.Stake, duel.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stake lock failed")
		return nil, fmt.Errorf("failed to lock stake: %w", err)
	}

	if err := s.store.Create(ctx, duel); err != nil {
		// Best-effort return of the stake if the insert fails
		if unlockErr := s.ledger.Unlock(ctx, duel.Player1, duel.TokenMint, duel.Stake, duel.ID); unlockErr != nil {
			log.Printf("CRITICAL: duel %s insert failed and stake unlock failed for %s: %v",
				duel.ID, duel.Player1, unlockErr)
		}
		return nil, fmt.Errorf("failed to create duel: %w", err)
	}

	s.logger.Info("duel created",
		"duelId", duel.ID, "player1", duel.Player1, "stake", duel.Stake, "mint", duel.TokenMint)
	duelCreatedTotal.Inc()
	metrics.ActiveDuels.Inc()
	s.emit("duel.created", duel)

	return duel, nil
}

// Join adds the challenger and locks their stake, moving the duel to ACTIVE.
func (s *Service) Join(ctx context.Context, id, player2 string) (*Duel, error) {
	ctx, span := traces.StartSpan(ctx, "duel.Join",
		traces.DuelID(id), traces.Wallet(player2))
	defer span.End()

	if !validation.IsValidWallet(player2) {
		return nil, fmt.Errorf("%w: player2 must be a valid wallet address", ErrValidation)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	duel, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if duel.Status != StatusOpen {
		return nil, ErrInvalidState
	}
	if player2 == duel.Player1 {
		return nil, ErrSelfPlay
	}

	if err := s.ledger.Lock(ctx, player2, duel.TokenMint, duel.Stake, duel.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stake lock failed")
		return nil, fmt.Errorf("failed to lock stake: %w", err)
	}

	duel.Player2 = player2
	duel.Status = StatusActive
	duel.UpdatedAt = time.Now()

	if err := s.store.Update(ctx, duel); err != nil {
		// Compensate: return the challenger's stake, duel stays OPEN
		if unlockErr := s.ledger.Unlock(ctx, player2, duel.TokenMint, duel.Stake, duel.ID); unlockErr != nil {
			log.Printf("CRITICAL: duel %s join update failed and stake unlock failed for %s: %v",
				duel.ID, player2, unlockErr)
		}
		return nil, fmt.Errorf("failed to update duel: %w", err)
	}

	s.logger.Info("duel joined", "duelId", duel.ID, "player2", player2)
	duelJoinedTotal.Inc()
	s.emit("duel.joined", duel)

	return duel, nil
}

// Cancel cancels an OPEN duel and returns the creator's stake. Only the
// creator may cancel; expiry cancellation goes through SweepExpired.
func (s *Service) Cancel(ctx context.Context, id, requester string) (*Duel, error) {
	ctx, span := traces.StartSpan(ctx, "duel.Cancel",
		traces.DuelID(id), traces.Wallet(requester))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	duel, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if duel.Status != StatusOpen {
		return nil, ErrInvalidState
	}
	if requester != duel.Player1 {
		return nil, ErrUnauthorized
	}

	return s.cancelLocked(ctx, duel, "cancelled by creator")
}

// cancelLocked transitions an OPEN duel to CANCELLED and returns the
// creator's stake. Caller must hold the duel's mutex and have verified
// status = OPEN.
func (s *Service) cancelLocked(ctx context.Context, duel *Duel, reason string) (*Duel, error) {
	if err := s.ledger.Unlock(ctx, duel.Player1, duel.TokenMint, duel.Stake, duel.ID); err != nil {
		return nil, fmt.Errorf("failed to unlock stake: %w", err)
	}

	duel.Status = StatusCancelled
	duel.UpdatedAt = time.Now()

	if err := s.store.Update(ctx, duel); err != nil {
		// Retry once — the stake is already back in available, the record
		// must reflect the cancellation.
		if retryErr := s.store.Update(ctx, duel); retryErr != nil {
			log.Printf("CRITICAL: duel %s stake unlocked but cancel update failed: %v",
				duel.ID, retryErr)
			return nil, fmt.Errorf("failed to update duel after stake unlock (requires manual resolution): %w", err)
		}
	}

	s.logger.Info("duel cancelled", "duelId", duel.ID, "reason", reason)
	duelCancelledTotal.Inc()
	metrics.ActiveDuels.Dec()
	s.emit("duel.cancelled", duel)

	return duel, nil
}

// Get returns a duel by ID.
func (s *Service) Get(ctx context.Context, id string) (*Duel, error) {
	return s.store.Get(ctx, id)
}

// Page is one page of a duel listing.
type Page struct {
	Duels      []*Duel `json:"duels"`
	NextCursor string  `json:"nextCursor,omitempty"`
	HasMore    bool    `json:"hasMore"`
}

// ListByStatus returns duels in the given status, most recent first.
func (s *Service) ListByStatus(ctx context.Context, status Status, cursor string, limit int) (*Page, error) {
	after, err := pagination.Decode(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if limit <= 0 {
		limit = 50
	}
	duels, err := s.store.ListByStatus(ctx, status, after, limit+1)
	if err != nil {
		return nil, err
	}
	return makePage(duels, limit), nil
}

// ListByPlayer returns duels the wallet participates in, most recent first.
func (s *Service) ListByPlayer(ctx context.Context, wallet, cursor string, limit int) (*Page, error) {
	after, err := pagination.Decode(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if limit <= 0 {
		limit = 50
	}
	duels, err := s.store.ListByPlayer(ctx, wallet, after, limit+1)
	if err != nil {
		return nil, err
	}
	return makePage(duels, limit), nil
}

func makePage(duels []*Duel, limit int) *Page {
	trimmed, next, more := pagination.ComputePage(duels, limit, func(d *Duel) (time.Time, string) {
		return d.CreatedAt, d.ID
	})
	return &Page{Duels: trimmed, NextCursor: next, HasMore: more}
}

func (s *Service) emit(event string, duel *Duel) {
	if s.emitter != nil {
		s.emitter.EmitDuelEvent(event, duel)
	}
}

// ParseStatus validates a status string from a query parameter.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToUpper(s)) {
	case StatusOpen, StatusActive, StatusDisputed, StatusSettled, StatusCancelled:
		return Status(strings.ToUpper(s)), true
	}
	return "", false
}

// payout returns 2 × stake as a decimal string. Used only for logging and
// event payloads; escrow arithmetic stays inside the ledger.
func payout(stake string) string {
	parts := strings.SplitN(stake, ".", 2)
	whole, ok := new(big.Int).SetString(parts[0], 10)
	if !ok {
		return stake
	}
	whole.Mul(whole, big.NewInt(2))
	if len(parts) == 2 {
		frac, ok := new(big.Int).SetString(parts[1], 10)
		if ok && frac.Sign() != 0 {
			// Double the fractional part in fixed-point
			scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(len(parts[1]))), nil)
			frac.Mul(frac, big.NewInt(2))
			carry := new(big.Int)
			carry.DivMod(frac, scale, frac)
			whole.Add(whole, carry)
			fracStr := frac.String()
			for len(fracStr) < len(parts[1]) {
				fracStr = "0" + fracStr
			}
			fracStr = strings.TrimRight(fracStr, "0")
			if fracStr != "" {
				return whole.String() + "." + fracStr
			}
		}
	}
	return whole.String()
}
