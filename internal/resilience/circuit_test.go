package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(NewCircuitConfig("google", threshold, reset))
	cb.nowFunc = clock.Now
	return cb, clock
}

func fail(cb *CircuitBreaker, n int) {
	for range n {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("captcha")
		})
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	fail(cb, 3)

	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		t.Error("should not be called when open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	fail(cb, 2)
	if cb.Failures() != 2 {
		t.Errorf("expected 2 failures, got %d", cb.Failures())
	}
	_ = cb.Execute(context.Background(), func(_ context.Context) error { return nil })
	if cb.Failures() != 0 {
		t.Errorf("expected reset, got %d", cb.Failures())
	}
	fail(cb, 2)
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, clock := newTestBreaker(2, time.Minute)
	fail(cb, 2)

	clock.now = clock.now.Add(time.Minute)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}

	v, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("probe failed: %q %v", v, err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb, clock := newTestBreaker(2, time.Minute)
	fail(cb, 2)

	clock.now = clock.now.Add(2 * time.Minute)
	fail(cb, 1)
	if cb.State() != CircuitOpen {
		t.Errorf("expected reopened, got %s", cb.State())
	}

	clock.now = clock.now.Add(30 * time.Second)
	if cb.State() != CircuitOpen {
		t.Errorf("reset timeout should restart from the failed probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_ContextErrorsDoNotTrip(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Minute)
	_ = cb.Execute(context.Background(), func(_ context.Context) error {
		return context.Canceled
	})
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
}

func TestNewCircuitConfig_Defaults(t *testing.T) {
	cfg := NewCircuitConfig("google", 0, 0)
	if cfg.FailureThreshold != 3 || cfg.ResetTimeout != 10*time.Minute || cfg.Name != "google" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestCircuitState_String(t *testing.T) {
	for state, want := range map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(42): "unknown",
	} {
		if state.String() != want {
			t.Errorf("expected %q, got %q", want, state.String())
		}
	}
}
