package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned instead of calling a provider that keeps rate limiting us.
var ErrCircuitOpen = errors.New("circuit open")

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	// BreakerHalfOpen lets a single probe through after the cooldown.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker opens after threshold consecutive rate limit failures and stays open
// for the cooldown, or the provider's Retry-After when that is longer. A failed
// probe reopens it at once.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	failures  int
	openUntil time.Time
	probing   bool
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (c *CircuitBreaker) State() BreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *CircuitBreaker) stateLocked() BreakerState {
	switch {
	case c.openUntil.IsZero():
		return BreakerClosed
	case c.now().Before(c.openUntil):
		return BreakerOpen
	default:
		return BreakerHalfOpen
	}
}

// Allow reports whether a request may go out. In half-open state only the first
// caller gets through until it reports back.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.stateLocked() {
	case BreakerOpen:
		return false
	case BreakerHalfOpen:
		if c.probing {
			return false
		}
		c.probing = true
	}
	return true
}

func (c *CircuitBreaker) OnSuccess() {
	c.mu.Lock()
	c.failures = 0
	c.openUntil = time.Time{}
	c.probing = false
	c.mu.Unlock()
}

// OnError records a failed request. Errors other than rate limits only release a
// pending probe.
func (c *CircuitBreaker) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	probe := c.probing
	c.probing = false
	if !IsRateLimit(err) {
		return
	}
	c.failures++
	if !probe && c.failures < c.threshold {
		return
	}
	wait := c.cooldown
	if ra := retryAfter(err); ra > wait {
		wait = ra
	}
	c.openUntil = c.now().Add(wait)
}
