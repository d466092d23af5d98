package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var errVerifierDown = errors.New("verifier down")

func TestDo_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RecoversAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 5, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errVerifierDown
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil after recovery, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return errVerifierDown
	})
	if !errors.Is(err, errVerifierDown) {
		t.Fatalf("expected errVerifierDown, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_PermanentErrorShortCircuits(t *testing.T) {
	rejected := errors.New("notice rejected")
	calls := 0
	err := Do(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return Permanent(rejected)
	})
	if !errors.Is(err, rejected) {
		t.Fatalf("expected rejected error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("permanent error must not be retried, got %d calls", calls)
	}

	// The wrapper is stripped before returning.
	var pe *PermanentError
	if errors.As(err, &pe) {
		t.Error("PermanentError wrapper leaked to caller")
	}
}

func TestDo_ContextCancelStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, 10, time.Hour, func() error {
			calls.Add(1)
			return errVerifierDown
		})
	}()

	// Let the first attempt fail, then cancel mid-backoff.
	for calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call before cancel, got %d", calls.Load())
	}
}

func TestDo_NonPositiveAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), 0, time.Millisecond, func() error {
		calls++
		return errVerifierDown
	})
	if calls != 1 {
		t.Errorf("expected exactly 1 call for maxAttempts=0, got %d", calls)
	}
}

func TestDo_DelaysGrow(t *testing.T) {
	var stamps []time.Time
	_ = Do(context.Background(), 3, 20*time.Millisecond, func() error {
		stamps = append(stamps, time.Now())
		return errVerifierDown
	})
	if len(stamps) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(stamps))
	}

	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])

	// With ±25% jitter the first gap is at least 15ms and the second,
	// built on a doubled base, at least 30ms.
	if first < 15*time.Millisecond {
		t.Errorf("first backoff too short: %v", first)
	}
	if second < 30*time.Millisecond {
		t.Errorf("second backoff too short: %v", second)
	}
}

func TestPermanent_PreservesCause(t *testing.T) {
	cause := errors.New("bad request")
	wrapped := Permanent(cause)
	if !errors.Is(wrapped, cause) {
		t.Error("Permanent should unwrap to its cause")
	}
	if wrapped.Error() != cause.Error() {
		t.Errorf("message changed: %q", wrapped.Error())
	}
}
