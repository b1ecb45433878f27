package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errRPCDown = errors.New("rpc endpoint down")

// newTestBreaker builds a breaker with short thresholds so tests can walk
// the full state machine quickly.
func newTestBreaker(onChange func(from, to State)) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "near-rpc",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          25 * time.Millisecond,
		OnStateChange:    onChange,
	})
}

// failTimes drives the breaker through n consecutive failed calls.
func failTimes(t *testing.T, cb *CircuitBreaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return errRPCDown
		})
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "defaults"})

	if cb.failureThreshold != 5 {
		t.Errorf("failureThreshold = %d, want 5", cb.failureThreshold)
	}
	if cb.successThreshold != 2 {
		t.Errorf("successThreshold = %d, want 2", cb.successThreshold)
	}
	if cb.timeout != 60*time.Second {
		t.Errorf("timeout = %v, want 60s", cb.timeout)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
	if cb.Name() != "defaults" {
		t.Errorf("Name() = %q, want defaults", cb.Name())
	}
}

func TestOpensAtFailureThreshold(t *testing.T) {
	cb := newTestBreaker(nil)

	failTimes(t, cb, 2)
	if cb.State() != StateClosed {
		t.Fatalf("state after 2 failures = %v, want closed", cb.State())
	}

	failTimes(t, cb, 1)
	if cb.State() != StateOpen {
		t.Fatalf("state after 3 failures = %v, want open", cb.State())
	}

	// Open breaker rejects without invoking the function.
	invoked := false
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute while open = %v, want ErrCircuitOpen", err)
	}
	if invoked {
		t.Error("open breaker invoked the wrapped function")
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker(nil)

	failTimes(t, cb, 2)
	if err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	}); err != nil {
		t.Fatalf("successful call failed: %v", err)
	}

	// The streak was broken, so two more failures stay under threshold.
	failTimes(t, cb, 2)
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed after broken failure streak", cb.State())
	}
}

func TestRecoversThroughHalfOpen(t *testing.T) {
	cb := newTestBreaker(nil)
	failTimes(t, cb, 3)

	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	// After the timeout the next call is let through as a trial.
	time.Sleep(30 * time.Millisecond)
	for i := 0; i < 2; i++ {
		if err := cb.Execute(context.Background(), func(ctx context.Context) error {
			return nil
		}); err != nil {
			t.Fatalf("trial call %d rejected: %v", i, err)
		}
	}

	if cb.State() != StateClosed {
		t.Errorf("state after %d trial successes = %v, want closed", 2, cb.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := newTestBreaker(nil)
	failTimes(t, cb, 3)

	time.Sleep(30 * time.Millisecond)
	failTimes(t, cb, 1)

	if cb.State() != StateOpen {
		t.Errorf("state after half-open failure = %v, want open", cb.State())
	}
}

func TestContextCancellationDoesNotTrip(t *testing.T) {
	cb := newTestBreaker(nil)

	// Cancellations are the caller's doing, not the dependency's health.
	for i := 0; i < 10; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return context.Canceled
		})
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return context.DeadlineExceeded
		})
	}

	if cb.State() != StateClosed {
		t.Errorf("state after cancellations = %v, want closed", cb.State())
	}
}

func TestStateChangeCallback(t *testing.T) {
	var mu sync.Mutex
	var transitions [][2]State
	cb := newTestBreaker(func(from, to State) {
		mu.Lock()
		transitions = append(transitions, [2]State{from, to})
		mu.Unlock()
	})

	failTimes(t, cb, 3)
	time.Sleep(30 * time.Millisecond)
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return nil
		})
	}

	mu.Lock()
	defer mu.Unlock()
	want := [][2]State{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(transitions) != len(want) {
		t.Fatalf("got %d transitions %v, want %d", len(transitions), transitions, len(want))
	}
	for i, tr := range want {
		if transitions[i] != tr {
			t.Errorf("transition %d = %v -> %v, want %v -> %v",
				i, transitions[i][0], transitions[i][1], tr[0], tr[1])
		}
	}
}

func TestForceOpenAndReset(t *testing.T) {
	cb := newTestBreaker(nil)

	cb.ForceOpen()
	if cb.State() != StateOpen {
		t.Fatalf("state after ForceOpen = %v, want open", cb.State())
	}
	if err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	}); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute after ForceOpen = %v, want ErrCircuitOpen", err)
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state after Reset = %v, want closed", cb.State())
	}
	if err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	}); err != nil {
		t.Errorf("Execute after Reset failed: %v", err)
	}
}

func TestExecuteWithResult(t *testing.T) {
	cb := newTestBreaker(nil)

	got, err := ExecuteWithResult(cb, context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Errorf("ExecuteWithResult = (%d, %v), want (42, nil)", got, err)
	}

	// Failures through the generic path count against the breaker too.
	for i := 0; i < 3; i++ {
		_, _ = ExecuteWithResult(cb, context.Background(), func(ctx context.Context) (int, error) {
			return 0, errRPCDown
		})
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	got, err = ExecuteWithResult(cb, context.Background(), func(ctx context.Context) (int, error) {
		return 7, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("ExecuteWithResult while open = %v, want ErrCircuitOpen", err)
	}
	if got != 0 {
		t.Errorf("ExecuteWithResult while open returned %d, want zero value", got)
	}
}

func TestStatsAndStateInt(t *testing.T) {
	cb := newTestBreaker(nil)
	failTimes(t, cb, 2)

	state, failures, successes := cb.Stats()
	if state != StateClosed || failures != 2 || successes != 0 {
		t.Errorf("Stats = (%v, %d, %d), want (closed, 2, 0)", state, failures, successes)
	}
	if cb.StateInt() != int64(StateClosed) {
		t.Errorf("StateInt = %d, want %d", cb.StateInt(), int64(StateClosed))
	}

	failTimes(t, cb, 1)
	if cb.StateInt() != int64(StateOpen) {
		t.Errorf("StateInt after trip = %d, want %d", cb.StateInt(), int64(StateOpen))
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestConcurrentExecutes(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "concurrent",
		FailureThreshold: 1000,
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = cb.Execute(context.Background(), func(ctx context.Context) error {
					if (n+j)%2 == 0 {
						return errRPCDown
					}
					return nil
				})
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent execute test timed out")
	}
}
