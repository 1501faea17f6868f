package utils

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrBreakerOpen = errors.New("circuit breaker is open")

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "open"
	}
}

// CircuitBreaker guards calls to an external dependency. After enough
// consecutive failures it opens and fails fast; after a cooldown it lets a
// single probe through and closes again on success.
type CircuitBreaker struct {
	name        string
	maxFailures uint32
	cooldown    time.Duration
	halfOpenMax uint32

	mu           sync.Mutex
	state        BreakerState
	failures     uint32
	halfOpenHits uint32
	openedAt     time.Time
}

func NewCircuitBreaker(name string) *CircuitBreaker {
	return &CircuitBreaker{
		name:        name,
		maxFailures: 5,
		cooldown:    30 * time.Second,
		halfOpenMax: 1,
		state:       BreakerClosed,
	}
}

// Execute runs fn under the breaker. A cancelled context counts as the
// caller's failure, not the dependency's, and leaves the breaker state
// untouched.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := cb.before(); err != nil {
		return nil, err
	}

	result, err := fn()
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) && ctx.Err() != nil {
		cb.abandon()
		return nil, err
	}
	cb.after(err == nil)
	return result, err
}

// abandon releases a claimed half-open slot when a call ends without a
// verdict on the dependency. Without this a cancelled probe would hold the
// slot forever and the breaker could never close again.
func (cb *CircuitBreaker) abandon() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == BreakerHalfOpen && cb.halfOpenHits > 0 {
		cb.halfOpenHits--
	}
}

// State reports the current breaker state, advancing open → half-open when
// the cooldown has passed.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance(time.Now())
	return cb.state
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance(time.Now())
	switch cb.state {
	case BreakerOpen:
		return ErrBreakerOpen
	case BreakerHalfOpen:
		if cb.halfOpenHits >= cb.halfOpenMax {
			return ErrBreakerOpen
		}
		cb.halfOpenHits++
	}
	return nil
}

func (cb *CircuitBreaker) after(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.state = BreakerClosed
		cb.failures = 0
		cb.halfOpenHits = 0
		return
	}

	cb.failures++
	if cb.state == BreakerHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = BreakerOpen
		cb.openedAt = time.Now()
		cb.halfOpenHits = 0
	}
}

func (cb *CircuitBreaker) advance(now time.Time) {
	if cb.state == BreakerOpen && now.Sub(cb.openedAt) >= cb.cooldown {
		cb.state = BreakerHalfOpen
		cb.halfOpenHits = 0
	}
}
