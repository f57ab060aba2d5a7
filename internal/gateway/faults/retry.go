package faults

import (
	"context"
	"sync"
	"time"
)

const (
	retryBaseDelay  = 100 * time.Millisecond
	retryMaxDelay   = 5 * time.Second
	retryAttempts   = 3
	breakerCooldown = 30 * time.Second
)

// Retry runs fn up to three times with exponential backoff (100ms doubling,
// capped at 5s). Only retriable faults are retried; security and compliance
// faults return immediately. On exhaustion the named operation trips the
// breaker, if one is given.
func Retry(ctx context.Context, breaker *CircuitBreaker, operation string, fn func(ctx context.Context) error) error {
	if breaker != nil && !breaker.Allow(operation) {
		return New(KindCircuitOpen, "circuit open for %s", operation)
	}

	var last error
	delay := retryBaseDelay
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Classify(ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
			if delay > retryMaxDelay {
				delay = retryMaxDelay
			}
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !Classify(last).Retriable() {
			return last
		}
	}

	if breaker != nil {
		breaker.Trip(operation)
	}
	return last
}

// CircuitBreaker trips per operation for a fixed cooldown after retry
// exhaustion. State is per process; each replica trips independently.
type CircuitBreaker struct {
	mu       sync.Mutex
	openedAt map[string]time.Time
	now      func() time.Time
}

func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		openedAt: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Allow reports whether the operation may run. An expired breaker resets on
// the way through.
func (cb *CircuitBreaker) Allow(operation string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	opened, ok := cb.openedAt[operation]
	if !ok {
		return true
	}
	if cb.now().Sub(opened) >= breakerCooldown {
		delete(cb.openedAt, operation)
		return true
	}
	return false
}

// Trip opens the breaker for the operation.
func (cb *CircuitBreaker) Trip(operation string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.openedAt[operation] = cb.now()
}
