package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

type flagError struct {
	retryable bool
}

func (e *flagError) Error() string     { return "flag error" }
func (e *flagError) IsRetryable() bool { return e.retryable }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", cfg.MaxRetries)
	}
	if cfg.InitialDelay != 100*time.Millisecond {
		t.Errorf("expected InitialDelay=100ms, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 5*time.Second {
		t.Errorf("expected MaxDelay=5s, got %v", cfg.MaxDelay)
	}
}

func TestProviderConfig(t *testing.T) {
	cfg := ProviderConfig(-1)
	if cfg.MaxRetries != 0 {
		t.Errorf("negative retries should clamp to 0, got %d", cfg.MaxRetries)
	}
	cfg = ProviderConfig(4)
	if cfg.MaxRetries != 4 {
		t.Errorf("expected MaxRetries=4, got %d", cfg.MaxRetries)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), fastConfig(), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("boom")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	callCount := 0
	expected := errors.New("persistent")
	err := Do(context.Background(), fastConfig(), func() error {
		callCount++
		return expected
	})

	if !errors.Is(err, expected) {
		t.Errorf("expected %v, got %v", expected, err)
	}
	if callCount != 4 {
		t.Errorf("expected 4 calls (1 + 3 retries), got %d", callCount)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, func() error { return errors.New("fail") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDoIfRetryable_NonRetryableReturnsImmediately(t *testing.T) {
	callCount := 0
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		callCount++
		return &flagError{retryable: false}
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestDoIfRetryable_WrappedRetryableError(t *testing.T) {
	callCount := 0
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		callCount++
		if callCount < 2 {
			return fmt.Errorf("classify: %w", &flagError{retryable: true})
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if callCount != 2 {
		t.Errorf("expected 2 calls, got %d", callCount)
	}
}

func TestDoIfRetryable_EscalatesRepeatedErrorType(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 10
	cfg.MaxSameErrorType = 3

	callCount := 0
	err := DoIfRetryable(context.Background(), cfg, func() error {
		callCount++
		return errors.New("HTTP 503 service unavailable")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if callCount != 3 {
		t.Errorf("expected escalation after 3 calls, got %d", callCount)
	}
}

func TestDoIfRetryableWithResult(t *testing.T) {
	var retries []int
	cfg := fastConfig()
	cfg.OnRetry = func(attempt int, err error) {
		retries = append(retries, attempt)
	}

	callCount := 0
	vec, err := DoIfRetryableWithResult(context.Background(), cfg, func() ([]float32, error) {
		callCount++
		if callCount == 1 {
			return nil, errors.New("429 rate limit")
		}
		return []float32{0.1, 0.2}, nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("expected 2-dim vector, got %v", vec)
	}
	if len(retries) != 1 || retries[0] != 1 {
		t.Errorf("expected one OnRetry call for attempt 1, got %v", retries)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("status code: 429"), true},
		{errors.New("anthropic: overloaded_error"), true},
		{errors.New("database is locked"), true},
		{errors.New("invalid api key"), false},
		{&flagError{retryable: true}, true},
		{fmt.Errorf("wrapped: %w", &flagError{retryable: false}), false},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.expected {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
		}
	}
}
