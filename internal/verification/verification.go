// Package verification bridges disputed duels to an external verification
// service. When both players claim victory the duel service hands the duel ID
// to a Dispatcher, which notifies the verifier out of band; the verifier later
// calls back with a ruling that is applied through the HTTP handler in this
// package.
package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ikkii-gg/ikkii-server/internal/circuitbreaker"
	"github.com/ikkii-gg/ikkii-server/internal/retry"
)

var (
	// ErrUnavailable indicates the verification service could not be reached
	// or returned a server error after retries.
	ErrUnavailable = errors.New("verification service unavailable")
	// ErrNoDecision indicates the verifier has no ruling for the duel yet.
	ErrNoDecision = errors.New("no verification decision")
)

const (
	notifyMaxAttempts = 3
	notifyBaseDelay   = 500 * time.Millisecond

	breakerThreshold = 5
	breakerOpenFor   = 30 * time.Second

	notifyKey   = "notify"
	decisionKey = "decision"
)

// Client talks to the external verification service over HTTP. A circuit
// breaker per endpoint sheds calls while the verifier is down; disputes stay
// DISPUTED and a later ResolveDispute call still settles them.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// NewClient creates a verification client. baseURL is the root of the
// verification API, e.g. https://verify.example.com.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New(breakerThreshold, breakerOpenFor),
		logger:  logger,
	}
}

// disputeNotice is the payload posted to the verifier when a duel is disputed.
type disputeNotice struct {
	DuelID     string    `json:"duelId"`
	DisputedAt time.Time `json:"disputedAt"`
}

// NotifyDispute tells the verification service that a duel needs a ruling.
// Transient failures (network errors, 5xx) are retried with backoff; 4xx
// responses are treated as permanent.
func (c *Client) NotifyDispute(ctx context.Context, duelID string) error {
	if !c.breaker.Allow(notifyKey) {
		return fmt.Errorf("%w: circuit open", ErrUnavailable)
	}

	payload, err := json.Marshal(disputeNotice{
		DuelID:     duelID,
		DisputedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}

	url := fmt.Sprintf("%s/disputes", c.baseURL)
	err = retry.Do(ctx, notifyMaxAttempts, notifyBaseDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return retry.Permanent(fmt.Errorf("verifier rejected notice: status %d", resp.StatusCode))
		default:
			return fmt.Errorf("verifier returned status %d", resp.StatusCode)
		}
	})
	if err != nil {
		c.breaker.RecordFailure(notifyKey)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.breaker.RecordSuccess(notifyKey)
	return nil
}

// Decision is a ruling fetched from the verification service.
type Decision struct {
	DuelID   string `json:"duelId"`
	Winner   string `json:"winner"`
	Evidence string `json:"evidence,omitempty"`
}

// FetchDecision asks the verifier for its ruling on a duel. Returns
// ErrNoDecision if the verifier has not ruled yet.
func (c *Client) FetchDecision(ctx context.Context, duelID string) (*Decision, error) {
	if !c.breaker.Allow(decisionKey) {
		return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
	}

	url := fmt.Sprintf("%s/disputes/%s/decision", c.baseURL, duelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.breaker.RecordFailure(decisionKey)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.breaker.RecordSuccess(decisionKey)
		return nil, ErrNoDecision
	case resp.StatusCode >= 500:
		c.breaker.RecordFailure(decisionKey)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		c.breaker.RecordSuccess(decisionKey)
		return nil, fmt.Errorf("verifier returned status %d", resp.StatusCode)
	}
	c.breaker.RecordSuccess(decisionKey)

	var decision Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return nil, fmt.Errorf("failed to decode decision: %w", err)
	}
	if decision.Winner == "" {
		return nil, ErrNoDecision
	}
	return &decision, nil
}
