package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	cfg.MaxFailures = 2
	cb, err := NewCircuitBreaker(cfg, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	failing := errors.New("upstream down")
	for i := 0; i < 2; i++ {
		_ = cb.Call(context.Background(), func(context.Context) error { return failing })
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected breaker to open after %d consecutive failures, got %v", cfg.MaxFailures, cb.GetState())
	}

	err = cb.Call(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Fatalf("expected ErrCircuitBreakerOpen while open, got %v", err)
	}
}

func TestCircuitBreakerHalfOpenRecoversToClosed(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	cfg.MaxFailures = 1
	cfg.ResetTimeout = 1 * time.Millisecond
	cb, err := NewCircuitBreaker(cfg, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_ = cb.Call(context.Background(), func(context.Context) error { return errors.New("fail") })
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got %v", cb.GetState())
	}

	time.Sleep(2 * time.Millisecond)
	err = cb.Call(context.Background(), func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("expected half-open test call to succeed, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed after successful half-open call, got %v", cb.GetState())
	}
}
