package duel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// SweepExpired cancels every OPEN duel whose expiry has passed and returns the
// number cancelled. Candidates are fetched in batches until the backlog is
// drained; each one is re-checked under its own mutex, so a concurrent Join
// wins the race and the duel is skipped. Re-running the sweep after everything
// expired is a no-op.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now()
	cancelled := 0
	for {
		expired, err := s.store.ListExpired(ctx, now, sweepBatchSize)
		if err != nil {
			return cancelled, fmt.Errorf("failed to list expired duels: %w", err)
		}
		if len(expired) == 0 {
			return cancelled, nil
		}

		// Duels that leave the OPEN-and-expired set this pass, whether
		// cancelled here or raced by a join. If a full batch shrinks by
		// nothing, every cancel failed and refetching would spin on the
		// same rows.
		drained := 0
		for _, candidate := range expired {
			unlock := s.locks.Lock(candidate.ID)

			duel, err := s.store.Get(ctx, candidate.ID)
			if err != nil {
				unlock()
				if errors.Is(err, ErrNotFound) {
					drained++
					continue
				}
				return cancelled, err
			}

			// Lost the race to a join or an explicit cancel: skip.
			if duel.Status != StatusOpen {
				unlock()
				drained++
				continue
			}

			_, err = s.cancelLocked(ctx, duel, "expired")
			unlock()
			if err != nil {
				s.logger.Warn("failed to cancel expired duel", "duelId", duel.ID, "error", err)
				continue
			}
			duelSweptTotal.Inc()
			drained++
			cancelled++
		}

		if len(expired) < sweepBatchSize || drained == 0 {
			return cancelled, nil
		}
	}
}

const sweepBatchSize = 100

// Sweeper periodically cancels expired OPEN duels.
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewSweeper creates a new expiry sweeper.
func NewSweeper(service *Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		service:  service,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the sweep loop is actively running.
func (sw *Sweeper) Running() bool {
	return sw.running.Load()
}

// Start begins the sweep loop. Call in a goroutine.
func (sw *Sweeper) Start(ctx context.Context) {
	sw.running.Store(true)
	defer sw.running.Store(false)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.stop:
			return
		case <-ticker.C:
			sw.safeSweep(ctx)
		}
	}
}

// Stop signals the sweeper to stop.
func (sw *Sweeper) Stop() {
	select {
	case sw.stop <- struct{}{}:
	default:
	}
}

func (sw *Sweeper) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			sw.logger.Error("panic in duel sweeper", "panic", fmt.Sprint(r))
		}
	}()

	cancelled, err := sw.service.SweepExpired(ctx)
	if err != nil {
		sw.logger.Warn("expiry sweep failed", "error", err)
		return
	}
	if cancelled > 0 {
		sw.logger.Info("expiry sweep cancelled duels", "count", cancelled)
	}
}
