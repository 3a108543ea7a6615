package outqueue

import (
	"sync"
	"time"
)

const (
	DefaultBreakerThreshold = 10
	DefaultBreakerCooldown  = 60 * time.Second
)

// BreakerState is a snapshot of the circuit breaker.
type BreakerState struct {
	Open              bool
	ConsecutiveErrors int
	LastError         time.Time
}

// Breaker halts outgoing sends after too many consecutive failures. It opens
// when the error count exceeds the threshold and closes again once the
// cooldown has elapsed since the last error.
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	threshold int
	cooldown  time.Duration
}

// NewBreaker returns a closed breaker. Non-positive arguments use the defaults.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	return &Breaker{threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a send may be attempted at now. An open breaker whose
// cooldown has elapsed is closed and its error count reset; reset reports that.
func (b *Breaker) Allow(now time.Time) (ok, reset bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.state.Open {
		return true, false
	}
	if now.Sub(b.state.LastError) > b.cooldown {
		b.state.Open = false
		b.state.ConsecutiveErrors = 0
		return true, true
	}
	return false, false
}

// Success decrements the error count, never below zero.
func (b *Breaker) Success() {
	b.mu.Lock()
	if b.state.ConsecutiveErrors > 0 {
		b.state.ConsecutiveErrors--
	}
	b.mu.Unlock()
}

// Failure records an error at now and reports whether the breaker is open.
func (b *Breaker) Failure(now time.Time) (open bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.ConsecutiveErrors++
	b.state.LastError = now
	if b.state.ConsecutiveErrors > b.threshold {
		b.state.Open = true
	}
	return b.state.Open
}

// State returns a snapshot.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
