package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/blogify/internal/telemetry"
)

// DefaultSweepInterval is how often expired entries are pruned.
const DefaultSweepInterval = time.Minute

// Result is the outcome of a Check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the time left in the current window, rounded up to whole seconds.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	if rem := d % time.Second; rem != 0 {
		d += time.Second - rem
	}
	return d
}

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter is an in-memory fixed-window counter keyed by arbitrary strings.
//
// It is not a sliding log or token bucket: a burst straddling a window
// boundary can be admitted up to roughly twice the limit. Counters are per
// process and are not shared between instances.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry

	now           func() time.Time
	sweepInterval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithSweepInterval sets how often Start prunes expired entries.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.sweepInterval = d
		}
	}
}

// New creates a Limiter. Call Start to run the background sweep.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		entries:       make(map[string]*entry),
		now:           time.Now,
		sweepInterval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts a request against key and reports whether it is allowed.
//
// A missing or expired entry starts a new window with count 1. A full window
// denies without touching the count or reset time.
func (l *Limiter) Check(key string, limit int, window time.Duration) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || now.After(e.resetAt) {
		resetAt := now.Add(window)
		l.entries[key] = &entry{count: 1, resetAt: resetAt}
		return Result{Allowed: true, Limit: limit, Remaining: max(limit-1, 0), ResetAt: resetAt}
	}

	if e.count >= limit {
		return Result{Allowed: false, Limit: limit, Remaining: 0, ResetAt: e.resetAt}
	}

	e.count++
	return Result{Allowed: true, Limit: limit, Remaining: limit - e.count, ResetAt: e.resetAt}
}

// CheckRule is Check using the limit and window of rule.
func (l *Limiter) CheckRule(key string, rule Rule) Result {
	return l.Check(key, rule.Limit, rule.Window)
}

// Sweep removes entries whose window has passed and returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

// Now returns the limiter's current time.
func (l *Limiter) Now() time.Time {
	return l.now()
}

// Start runs the periodic sweep in a background goroutine until Stop is
// called or ctx is cancelled.
func (l *Limiter) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	l.wg.Add(1)
	go l.sweepLoop(sweepCtx)
}

// Stop stops the background sweep and waits for it to exit.
func (l *Limiter) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	l.wg.Wait()
}

func (l *Limiter) sweepLoop(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Rate limit sweep stopped")
			return

		case <-ticker.C:
			removed := l.Sweep()
			if removed > 0 {
				telemetry.GetMetrics().RateLimitSweptEntries.Add(ctx, int64(removed))
				log.Debug().Int("removed", removed).Int("remaining", l.Len()).Msg("Swept expired rate limit entries")
			}
		}
	}
}
