package session

import (
	"sync"
	"time"
)

// Cooldown is an advisory client-side wait after consecutive login or signup
// failures. It can be bypassed by restarting the client; the edge rate
// limiter is the authoritative throttle.
type Cooldown struct {
	mu          sync.Mutex
	base        time.Duration
	max         time.Duration
	failures    int
	lastFailure time.Time
	now         func() time.Time
}

// NewCooldown creates a cooldown that waits base after the first failure,
// doubling per further failure up to max.
func NewCooldown(base, max time.Duration) *Cooldown {
	return &Cooldown{base: base, max: max, now: time.Now}
}

// Delay returns the wait for the given consecutive failure count.
func (c *Cooldown) Delay(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}

	d := c.base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= c.max {
			return c.max
		}
	}
	return min(d, c.max)
}

// Failure records a failed attempt and returns the wait before the next one.
func (c *Cooldown) Failure() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures++
	c.lastFailure = c.now()
	return c.Delay(c.failures)
}

// Success resets the failure count.
func (c *Cooldown) Success() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures = 0
	c.lastFailure = time.Time{}
}

// Restore loads persisted failure state.
func (c *Cooldown) Restore(failures int, lastFailure time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures = failures
	c.lastFailure = lastFailure
}

// Failures returns the consecutive failure count and the time of the last one.
func (c *Cooldown) Failures() (int, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.failures, c.lastFailure
}

// Remaining returns how long after now until another attempt is allowed.
func (c *Cooldown) Remaining(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failures == 0 {
		return 0
	}
	left := c.lastFailure.Add(c.Delay(c.failures)).Sub(now)
	return max(left, 0)
}

// Ready reports whether another attempt is allowed at now.
func (c *Cooldown) Ready(now time.Time) bool {
	return c.Remaining(now) == 0
}
