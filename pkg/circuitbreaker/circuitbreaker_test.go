package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestExecutePassesThroughWhenClosed(t *testing.T) {
	cb := New(DefaultConfig())

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed, got %s", cb.GetState())
	}
}

func TestOpensAfterFailureThreshold(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("attempt %d: expected boom, got %v", i, err)
		}
	}

	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got %s", cb.GetState())
	}

	err := cb.Execute(func() error {
		t.Fatal("fn must not run while open")
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestHalfOpenProbeRecovers(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond})

	if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got %s", cb.GetState())
	}

	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d failed: %v", i, err)
		}
	}

	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed after recovery, got %s", cb.GetState())
	}
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond})

	_ = cb.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected reopened circuit, got %s", cb.GetState())
	}
}

func TestReset(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute})

	_ = cb.Execute(func() error { return errBoom })
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got %s", cb.GetState())
	}

	cb.Reset()
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed after reset, got %s", cb.GetState())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
}
