package duel

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/ikkii-gg/ikkii-server/internal/metrics"
	"github.com/ikkii-gg/ikkii-server/internal/traces"
)

// SubmitResult records a player's claimed winner and reconciles once both
// players have submitted. Matching claims settle the duel; conflicting claims
// dispute it and notify the verifier. The read-check-write and the
// reconciliation run under the duel's mutex; the verifier notification fires
// after the mutex is released.
func (s *Service) SubmitResult(ctx context.Context, id, player, claimedWinner string) (*SubmitOutcome, error) {
	ctx, span := traces.StartSpan(ctx, "duel.SubmitResult",
		traces.DuelID(id), traces.Wallet(player))
	defer span.End()

	outcome, disputed, err := s.submitLocked(ctx, id, player, claimedWinner)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission rejected")
		return nil, err
	}

	if disputed && s.verifier != nil {
		s.verifier.NotifyDispute(id)
	}

	return outcome, nil
}

func (s *Service) submitLocked(ctx context.Context, id, player, claimedWinner string) (*SubmitOutcome, bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	duel, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}

	if duel.Status != StatusActive {
		return nil, false, ErrInvalidState
	}
	if !duel.IsParticipant(player) {
		return nil, false, ErrUnauthorized
	}
	if !duel.IsParticipant(claimedWinner) {
		return nil, false, fmt.Errorf("%w: claimed winner must be a participant", ErrValidation)
	}

	switch player {
	case duel.Player1:
		if duel.Player1Submitted != "" {
			return nil, false, ErrAlreadySubmitted
		}
		duel.Player1Submitted = claimedWinner
	case duel.Player2:
		if duel.Player2Submitted != "" {
			return nil, false, ErrAlreadySubmitted
		}
		duel.Player2Submitted = claimedWinner
	}
	duel.UpdatedAt = time.Now()

	// Only one slot filled: record the submission, nothing else moves.
	if duel.Player1Submitted == "" || duel.Player2Submitted == "" {
		if err := s.store.Update(ctx, duel); err != nil {
			return nil, false, fmt.Errorf("failed to record submission: %w", err)
		}
		return &SubmitOutcome{Duel: duel, Resolved: false}, false, nil
	}

	// Both slots filled: reconcile.
	if duel.Player1Submitted == duel.Player2Submitted {
		if err := s.settleLocked(ctx, duel, duel.Player1Submitted); err != nil {
			return nil, false, err
		}
		return &SubmitOutcome{Duel: duel, Resolved: true}, false, nil
	}

	// Disagreement: freeze funds where they are and hand off to verification.
	duel.Status = StatusDisputed
	if err := s.store.Update(ctx, duel); err != nil {
		return nil, false, fmt.Errorf("failed to mark duel disputed: %w", err)
	}

	s.logger.Warn("duel disputed",
		"duelId", duel.ID,
		"player1Claimed", duel.Player1Submitted,
		"player2Claimed", duel.Player2Submitted)
	duelDisputedTotal.Inc()
	s.emit("duel.disputed", duel)

	return &SubmitOutcome{Duel: duel, Resolved: false}, true, nil
}

// ResolveDispute applies an authoritative winner to a DISPUTED duel. A report
// for a duel in any other status is rejected, so a second report after
// settlement fails with ErrInvalidState.
func (s *Service) ResolveDispute(ctx context.Context, id, winner string) (*Duel, error) {
	ctx, span := traces.StartSpan(ctx, "duel.ResolveDispute",
		traces.DuelID(id), traces.Wallet(winner))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	duel, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if duel.Status != StatusDisputed {
		return nil, ErrInvalidState
	}
	if !duel.IsParticipant(winner) {
		return nil, fmt.Errorf("%w: winner must be a participant", ErrValidation)
	}

	if err := s.settleLocked(ctx, duel, winner); err != nil {
		return nil, err
	}

	s.logger.Info("dispute resolved", "duelId", duel.ID, "winner", winner)
	return duel, nil
}

// settleLocked pays out and transitions the duel to SETTLED. Caller must hold
// the duel's mutex. The winner's own stake is unlocked and the loser's locked
// stake is transferred, so the winner ends with both stakes available.
func (s *Service) settleLocked(ctx context.Context, duel *Duel, winner string) error {
	start := time.Now()

	loser := duel.Player1
	if winner == duel.Player1 {
		loser = duel.Player2
	}

	if err := s.ledger.Unlock(ctx, winner, duel.TokenMint, duel.Stake, duel.ID); err != nil {
		return fmt.Errorf("failed to unlock winner stake: %w", err)
	}

	if err := s.ledger.Transfer(ctx, loser, winner, duel.TokenMint, duel.Stake, duel.ID); err != nil {
		// Re-lock the winner's stake so the duel can settle again later.
		if lockErr := s.ledger.Lock(ctx, winner, duel.TokenMint, duel.Stake, duel.ID); lockErr != nil {
			log.Printf("CRITICAL: duel %s transfer failed and winner stake re-lock failed for %s: %v",
				duel.ID, winner, lockErr)
		}
		return fmt.Errorf("failed to transfer loser stake: %w", err)
	}

	duel.Winner = winner
	duel.Status = StatusSettled
	duel.UpdatedAt = time.Now()

	if err := s.store.Update(ctx, duel); err != nil {
		// Retry once — funds already moved, the record must reflect it.
		if retryErr := s.store.Update(ctx, duel); retryErr != nil {
			log.Printf("CRITICAL: duel %s paid out to %s but settle update failed: %v",
				duel.ID, winner, retryErr)
			return fmt.Errorf("failed to update duel after payout (requires manual resolution): %w", err)
		}
	}

	s.logger.Info("duel settled",
		"duelId", duel.ID, "winner", winner, "loser", loser, "payout", payout(duel.Stake))
	duelSettledTotal.Inc()
	metrics.ActiveDuels.Dec()
	settlementDuration.Observe(time.Since(start).Seconds())
	s.emit("duel.settled", duel)

	return nil
}
