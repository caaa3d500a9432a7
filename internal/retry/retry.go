// Package retry provides the decorator-style exponential-backoff executor
// and circuit breaker that wrap every ledger-facing call, the way the
// gift-card teacher wrapped its LND/exchange clients with plain error
// checks but without a shared retry policy of its own.
package retry

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"chatpay-core/internal/apperr"
)

// Config controls the backoff schedule for Do.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Base         float64
}

// DefaultConfig is five attempts total with a 5s initial delay and base 2,
// capped at 300s: it sleeps 10, 20, 40, 80 seconds before attempts 2..5.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 5 * time.Second,
		MaxDelay:     300 * time.Second,
		Base:         2,
	}
}

// delayFor returns the sleep before attempt k (1-indexed; no delay before
// attempt 1).
func (c Config) delayFor(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := float64(c.InitialDelay) * math.Pow(c.Base, float64(attempt-1))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	return time.Duration(d)
}

// retryable reports whether err should be retried. Only apperr-typed
// LedgerTransient and Internal failures are retried; everything else
// (validation, state, not-found, insufficient balance, security,
// rate-limited) short-circuits immediately.
func retryable(err error) bool {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Retryable()
	}
	// Untyped errors are treated as internal/transient so infrastructure
	// hiccups outside the taxonomy still get a chance to recover.
	return true
}

// Do executes fn up to cfg.MaxAttempts times, sleeping between attempts per
// the exponential schedule. It returns as soon as fn succeeds or a
// non-retryable error is returned. ctx cancellation aborts the wait.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			d := cfg.delayFor(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// breakerState is one of closed/open/half-open.
type breakerState int

const (
	closed breakerState = iota
	open
	halfOpen
)

// Breaker is a circuit breaker guarding a single downstream dependency
// (e.g. one ledger endpoint). Safe for concurrent use.
type Breaker struct {
	mu               sync.Mutex
	state            breakerState
	consecutiveFails int
	openedAt         time.Time

	failureThreshold int
	recoveryTimeout  time.Duration
}

// NewBreaker builds a closed breaker that opens after failureThreshold
// consecutive failures and attempts recovery after recoveryTimeout.
func NewBreaker(failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	return &Breaker{
		state:            closed,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

// ErrBreakerOpen is returned by Allow when the breaker is open and the
// recovery timeout has not yet elapsed.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// Allow reports whether a call may proceed, transitioning open→half-open
// once recoveryTimeout has elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case closed:
		return nil
	case open:
		if time.Since(b.openedAt) >= b.recoveryTimeout {
			b.state = halfOpen
			return nil
		}
		return ErrBreakerOpen
	case halfOpen:
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes the breaker and resets the failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = closed
	b.consecutiveFails = 0
}

// RecordFailure increments the failure counter, opening the breaker once
// the threshold is reached; a failure while half-open reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == halfOpen {
		b.state = open
		b.openedAt = time.Now()
		return
	}

	b.consecutiveFails++
	if b.consecutiveFails >= b.failureThreshold {
		b.state = open
		b.openedAt = time.Now()
	}
}

// Run executes fn only if the breaker allows it, recording the outcome.
func (b *Breaker) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}
