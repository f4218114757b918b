package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var errOutage = NewError(ErrorTypeEndpoint, "connection refused", true, nil)

func newTestBreaker(threshold int, resetAfter time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: threshold, ResetAfter: resetAfter})
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	if cb.State() != CircuitClosed {
		t.Errorf("expected initial state to be CircuitClosed, got %v", cb.State())
	}
	if err := cb.Allow(); err != nil {
		t.Errorf("expected no error for closed circuit, got %v", err)
	}
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)

	for i := 0; i < 3; i++ {
		cb.Record(errOutage)
	}

	if cb.State() != CircuitOpen {
		t.Fatalf("expected CircuitOpen after 3 failures, got %v", cb.State())
	}

	err := cb.Allow()
	if err == nil {
		t.Fatal("expected error for open circuit")
	}
	var llmErr *Error
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if llmErr.Retryable {
		t.Error("open circuit error must not be retryable")
	}
}

func TestCircuitBreaker_NonOutageErrorsDoNotTrip(t *testing.T) {
	cb, _ := newTestBreaker(2, 30*time.Second)

	for _, err := range []error{
		NewError(ErrorTypeAuth, "invalid api key", false, nil),
		NewError(ErrorTypeResponse, "malformed JSON", true, nil),
		context.Canceled,
		errors.New("validation failed"),
	} {
		cb.Record(err)
	}

	if cb.State() != CircuitClosed {
		t.Errorf("expected CircuitClosed, got %v", cb.State())
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)

	cb.Record(errOutage)
	cb.Record(errOutage)
	cb.Record(nil)
	cb.Record(errOutage)
	cb.Record(fmt.Errorf("wrapped: %w", context.DeadlineExceeded))

	if cb.State() != CircuitClosed {
		t.Errorf("expected CircuitClosed after success reset the count, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, now := newTestBreaker(1, 30*time.Second)

	cb.Record(errOutage)
	if err := cb.Allow(); err == nil {
		t.Fatal("expected open circuit to reject")
	}

	*now = now.Add(31 * time.Second)
	if err := cb.Allow(); err != nil {
		t.Fatalf("expected probe to be allowed, got %v", err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected CircuitHalfOpen, got %v", cb.State())
	}
	if err := cb.Allow(); err == nil {
		t.Error("expected second request during probe to be rejected")
	}

	// Failed probe reopens the circuit.
	cb.Record(errOutage)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected CircuitOpen after failed probe, got %v", cb.State())
	}

	*now = now.Add(31 * time.Second)
	if err := cb.Allow(); err != nil {
		t.Fatalf("expected second probe to be allowed, got %v", err)
	}
	cb.Record(nil)
	if cb.State() != CircuitClosed {
		t.Errorf("expected CircuitClosed after successful probe, got %v", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Hour)

	cb.Record(errOutage)
	cb.Reset()

	if err := cb.Allow(); err != nil {
		t.Errorf("expected Allow after Reset, got %v", err)
	}
}

func TestCircuitBreaker_NilAndDisabled(t *testing.T) {
	if cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 0}); cb != nil {
		t.Fatal("expected nil breaker for zero threshold")
	}

	var cb *CircuitBreaker
	cb.Record(errOutage)
	cb.Reset()
	if err := cb.Allow(); err != nil {
		t.Errorf("nil breaker must allow, got %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("nil breaker reports closed, got %v", cb.State())
	}
}

func TestCircuitState_String(t *testing.T) {
	tests := map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(99): "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", state, got, want)
		}
	}
}
