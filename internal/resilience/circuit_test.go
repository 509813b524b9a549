package resilience

import (
	"sync"
	"testing"
	"time"
)

func TestCircuitBreaker_ClosedState_AllowsProbes(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitConfig())

	if err := cb.Allow(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cfg := CircuitConfig{
		FailureThreshold: 3,
		Cooldown:         1 * time.Minute,
	}
	cb := NewCircuitBreaker(cfg)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	if cb.State() != CircuitOpen {
		t.Errorf("expected open state after %d failures, got %s", cfg.FailureThreshold, cb.State())
	}
	if err := cb.Allow(); err == nil {
		t.Error("expected Allow to reject while open")
	}
}

func TestCircuitBreaker_SuccessResetsCounter(t *testing.T) {
	cfg := CircuitConfig{
		FailureThreshold: 3,
		Cooldown:         1 * time.Minute,
	}
	cb := NewCircuitBreaker(cfg)

	cb.RecordFailure()
	cb.RecordFailure()

	failures, state := cb.Counters()
	if failures != 2 {
		t.Errorf("expected 2 consecutive failures, got %d", failures)
	}
	if state != CircuitClosed {
		t.Errorf("expected closed state, got %s", state)
	}

	cb.RecordSuccess()

	failures, _ = cb.Counters()
	if failures != 0 {
		t.Errorf("expected 0 consecutive failures after success, got %d", failures)
	}
}

func TestCircuitBreaker_HalfOpenAfterCooldown(t *testing.T) {
	now := time.Now()
	cfg := CircuitConfig{
		FailureThreshold: 2,
		Cooldown:         100 * time.Millisecond,
	}
	cb := NewCircuitBreaker(cfg)
	cb.nowFunc = func() time.Time { return now }

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open state, got %s", cb.State())
	}

	// Advance time past the cooldown.
	cb.nowFunc = func() time.Time { return now.Add(200 * time.Millisecond) }

	if cb.State() != CircuitHalfOpen {
		t.Errorf("expected half-open state after cooldown, got %s", cb.State())
	}

	// The trial probe is admitted and its success closes the circuit.
	if err := cb.Allow(); err != nil {
		t.Fatalf("expected trial probe admitted, got %v", err)
	}
	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state after successful trial, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailure_Reopens(t *testing.T) {
	now := time.Now()
	cfg := CircuitConfig{
		FailureThreshold: 2,
		Cooldown:         100 * time.Millisecond,
	}
	cb := NewCircuitBreaker(cfg)
	cb.nowFunc = func() time.Time { return now }

	cb.RecordFailure()
	cb.RecordFailure()

	cb.nowFunc = func() time.Time { return now.Add(200 * time.Millisecond) }

	if err := cb.Allow(); err != nil {
		t.Fatalf("expected trial probe admitted, got %v", err)
	}
	cb.RecordFailure()

	if _, state := cb.Counters(); state != CircuitOpen {
		t.Errorf("expected reopened circuit after failed trial, got %s", state)
	}
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	cfg := CircuitConfig{
		FailureThreshold: 1,
		Cooldown:         1 * time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	}
	cb := NewCircuitBreaker(cfg)

	cb.RecordFailure()
	cb.Reset()

	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %v", transitions)
	}
	if transitions[0] != "closed->open" {
		t.Errorf("unexpected first transition: %s", transitions[0])
	}
	if transitions[1] != "open->closed" {
		t.Errorf("unexpected second transition: %s", transitions[1])
	}
}

func TestSourceBreakers_SharedPerSource(t *testing.T) {
	sb := NewSourceBreakers(DefaultCircuitConfig())

	a := sb.Get("kakao_local")
	b := sb.Get("kakao_local")
	if a != b {
		t.Error("expected the same breaker for the same source")
	}
	if sb.Get("naver_local") == a {
		t.Error("expected distinct breakers for distinct sources")
	}
}

func TestSourceBreakers_ConcurrentGet(t *testing.T) {
	sb := NewSourceBreakers(DefaultCircuitConfig())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb := sb.Get("homepage")
			cb.RecordFailure()
			cb.RecordSuccess()
		}()
	}
	wg.Wait()

	states := sb.States()
	if len(states) != 1 {
		t.Fatalf("expected 1 breaker, got %d", len(states))
	}
}
