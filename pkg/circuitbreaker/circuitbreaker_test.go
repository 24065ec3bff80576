package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTestError = errors.New("test error")

func TestCircuitBreaker_ClosedState_Success(t *testing.T) {
	cb := New(DefaultConfig())

	err := cb.Execute(context.Background(), func() error { return nil })
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected state Closed, got: %v", cb.GetState())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New(Config{
		FailureThreshold:    2,
		SuccessThreshold:    2,
		Timeout:             100 * time.Millisecond,
		MaxRequestsHalfOpen: 3,
	})

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func() error { return errTestError })
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected state Open, got: %v", cb.GetState())
	}

	called := false
	err := cb.Execute(context.Background(), func() error {
		called = true
		return nil
	})
	if err == nil {
		t.Error("Expected rejection while open, got nil")
	}
	if called {
		t.Error("Function must not run while circuit is open")
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := New(Config{
		FailureThreshold:    1,
		SuccessThreshold:    2,
		Timeout:             20 * time.Millisecond,
		MaxRequestsHalfOpen: 5,
	})

	_ = cb.Execute(context.Background(), func() error { return errTestError })
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected state Open, got: %v", cb.GetState())
	}

	time.Sleep(30 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := cb.Execute(context.Background(), func() error { return nil }); err != nil {
			t.Fatalf("Expected probe to pass, got: %v", err)
		}
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected state Closed after recovery, got: %v", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New(Config{
		FailureThreshold:    1,
		SuccessThreshold:    2,
		Timeout:             20 * time.Millisecond,
		MaxRequestsHalfOpen: 5,
	})

	_ = cb.Execute(context.Background(), func() error { return errTestError })
	time.Sleep(30 * time.Millisecond)

	_ = cb.Execute(context.Background(), func() error { return errTestError })
	if cb.GetState() != StateOpen {
		t.Errorf("Expected state Open after half-open failure, got: %v", cb.GetState())
	}
}
