package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute, Component: "test"})
	ctx := context.Background()

	fail := func() error { return errUpstream }
	for i := 0; i < 3; i++ {
		if err := cb.Call(ctx, fail); !errors.Is(err, errUpstream) {
			t.Fatalf("call %d: err = %v, want errUpstream", i, err)
		}
	}

	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	// While open, calls are rejected without touching the upstream.
	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	if err == nil {
		t.Fatal("expected rejection while open")
	}
	if called {
		t.Error("fn should not run while the circuit is open")
	}
}

func TestCircuitBreakerClosedOnSuccess(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute, Component: "test"})
	ctx := context.Background()

	// Failures below the threshold keep the circuit closed, and a success
	// resets the failure count.
	_ = cb.Call(ctx, func() error { return errUpstream })
	_ = cb.Call(ctx, func() error { return errUpstream })
	if err := cb.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("successful call: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %s, want closed", cb.State())
	}

	_ = cb.Call(ctx, func() error { return errUpstream })
	_ = cb.Call(ctx, func() error { return errUpstream })
	if cb.State() != StateClosed {
		t.Error("failure count should have been reset by the success")
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond, Component: "test"})
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errUpstream })
	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	// First probe after the timeout transitions into half-open.
	if err := cb.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("probe call: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half_open after one probe success", cb.State())
	}

	if err := cb.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("second probe call: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed after success threshold", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond, Component: "test"})
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errUpstream })
	time.Sleep(20 * time.Millisecond)

	if err := cb.Call(ctx, func() error { return errUpstream }); !errors.Is(err, errUpstream) {
		t.Fatalf("probe err = %v, want errUpstream", err)
	}
	if cb.State() != StateOpen {
		t.Errorf("state = %s, want open after half-open failure", cb.State())
	}
}

func TestCircuitBreakerStateChangeCallback(t *testing.T) {
	var transitions [][2]State
	cb := New(Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          10 * time.Millisecond,
		Component:        "test",
		OnStateChange: func(from, to State) {
			transitions = append(transitions, [2]State{from, to})
		},
	})
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errUpstream })
	time.Sleep(20 * time.Millisecond)
	_ = cb.Call(ctx, func() error { return nil })

	want := [][2]State{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %s->%s, want %s->%s",
				i, transitions[i][0], transitions[i][1], want[i][0], want[i][1])
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}
