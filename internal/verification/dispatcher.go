package verification

import (
	"context"
	"log/slog"
	"time"
)

// Dispatcher delivers dispute notifications asynchronously. It satisfies the
// duel service's Verifier interface: NotifyDispute returns immediately and the
// HTTP call runs in its own goroutine with its own deadline, so settlement
// never blocks on the verifier.
type Dispatcher struct {
	client  *Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewDispatcher wraps a client for async delivery. A nil client yields a
// dispatcher that only logs, which is what development environments without a
// verifier configured get.
func NewDispatcher(client *Client, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
}

// NotifyDispute queues delivery of a dispute notice and returns immediately.
func (d *Dispatcher) NotifyDispute(duelID string) {
	if d.client == nil {
		d.logger.Warn("No verifier configured, dispute requires manual resolution",
			"duelId", duelID)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.client.NotifyDispute(ctx, duelID); err != nil {
			noticesFailedTotal.Inc()
			d.logger.Error("Failed to notify verifier of dispute",
				"duelId", duelID,
				"error", err)
			return
		}
		noticesSentTotal.Inc()
		d.logger.Info("Verifier notified of dispute", "duelId", duelID)
	}()
}
