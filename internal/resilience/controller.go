package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy is the retry behavior for one failure class.
type Policy struct {
	// MaxAttempts is the total number of attempts (including the first).
	MaxAttempts int
	// Base is the delay before the first retry.
	Base time.Duration
	// Linear selects linear growth (base * attempt) instead of exponential.
	Linear bool
	// JitterFraction adds random jitter as a fraction of the computed delay.
	JitterFraction float64
}

// Policies maps each failure class to its retry policy.
type Policies map[Class]Policy

// DefaultPolicies returns the class-matched retry policies: exponential
// backoff for network failures, longer linear backoff for rate limits, a
// single immediate re-probe for validation failures, nothing for permanent.
func DefaultPolicies() Policies {
	return Policies{
		ClassNetwork:    {MaxAttempts: 3, Base: 500 * time.Millisecond, JitterFraction: 0.25},
		ClassRateLimit:  {MaxAttempts: 5, Base: 2 * time.Second, Linear: true, JitterFraction: 0.25},
		ClassValidation: {MaxAttempts: 2},
		ClassPermanent:  {MaxAttempts: 1},
	}
}

// ExhaustedError is returned when every retry for a source call has been
// spent. Terminal for that source in the current pass, never fatal to the
// organization.
type ExhaustedError struct {
	Source   string
	Class    Class
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return e.Err.Error()
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Controller classifies source failures and applies the matching retry
// policy behind a per-source circuit breaker. One controller is shared by
// all organizations processed concurrently in a batch.
type Controller struct {
	policies Policies
	breakers *SourceBreakers
}

// NewController creates a retry controller with the given policies and
// circuit breaker config.
func NewController(policies Policies, circuit CircuitConfig) *Controller {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Controller{
		policies: policies,
		breakers: NewSourceBreakers(circuit),
	}
}

// Breakers exposes the per-source circuit breakers for observability.
func (c *Controller) Breakers() *SourceBreakers {
	return c.breakers
}

// Execute runs fn for the named source. The circuit breaker is consulted
// before every attempt; failures are classified and retried under the
// matching policy. Returns ErrCircuitOpen without calling fn when the
// source's circuit is open, and *ExhaustedError once retries are spent on
// a retryable class.
func (c *Controller) Execute(ctx context.Context, source string, fn func(ctx context.Context) error) error {
	cb := c.breakers.Get(source)

	var lastErr error
	var lastClass Class
	attempt := 0
	for {
		attempt++

		if err := cb.Allow(); err != nil {
			if attempt == 1 {
				return err
			}
			// Another organization's failures opened the circuit mid-retry.
			return &ExhaustedError{Source: source, Class: lastClass, Attempts: attempt - 1, Err: lastErr}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			cb.RecordSuccess()
			return nil
		}
		// A probe cut short by the caller's budget says nothing about the
		// source's health; only real failures feed the shared breaker.
		if ctx.Err() != nil {
			return lastErr
		}
		cb.RecordFailure()

		lastClass = Classify(lastErr)
		policy, ok := c.policies[lastClass]
		if !ok || !lastClass.Retryable() {
			return lastErr
		}
		if attempt >= policy.MaxAttempts {
			return &ExhaustedError{Source: source, Class: lastClass, Attempts: attempt, Err: lastErr}
		}

		zap.L().Warn("retrying source call",
			zap.String("source", source),
			zap.String("class", string(lastClass)),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)

		if delay := backoff(policy, attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
		}
	}
}

// ExecuteVal is like Execute but preserves a return value.
func ExecuteVal[T any](ctx context.Context, c *Controller, source string, fn func(ctx context.Context) (T, error)) (T, error) {
	var val T
	err := c.Execute(ctx, source, func(ctx context.Context) error {
		var ferr error
		val, ferr = fn(ctx)
		return ferr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return val, nil
}

// Unavailable reports whether err means the source was skipped or spent
// without yielding data: an open circuit or exhausted retries.
func Unavailable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return true
	}
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// backoff computes the delay before the retry following the given attempt.
// Attempt numbering starts at 1.
func backoff(p Policy, attempt int) time.Duration {
	if p.Base <= 0 {
		return 0
	}

	var delay float64
	if p.Linear {
		delay = float64(p.Base) * float64(attempt)
	} else {
		delay = float64(p.Base) * math.Pow(2, float64(attempt-1))
	}

	if p.JitterFraction > 0 {
		jitterRange := delay * p.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// FromConfig builds Policies from flat config values, falling back to
// defaults for anything unset.
func FromConfig(networkAttempts, networkBaseMs, rateLimitAttempts, rateLimitBaseMs int) Policies {
	p := DefaultPolicies()
	if networkAttempts > 0 {
		np := p[ClassNetwork]
		np.MaxAttempts = networkAttempts
		p[ClassNetwork] = np
	}
	if networkBaseMs > 0 {
		np := p[ClassNetwork]
		np.Base = time.Duration(networkBaseMs) * time.Millisecond
		p[ClassNetwork] = np
	}
	if rateLimitAttempts > 0 {
		rp := p[ClassRateLimit]
		rp.MaxAttempts = rateLimitAttempts
		p[ClassRateLimit] = rp
	}
	if rateLimitBaseMs > 0 {
		rp := p[ClassRateLimit]
		rp.Base = time.Duration(rateLimitBaseMs) * time.Millisecond
		p[ClassRateLimit] = rp
	}
	return p
}

// FromCircuitConfig converts config values to a CircuitConfig.
func FromCircuitConfig(failureThreshold, cooldownSecs int) CircuitConfig {
	cfg := DefaultCircuitConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if cooldownSecs > 0 {
		cfg.Cooldown = time.Duration(cooldownSecs) * time.Second
	}
	return cfg
}
