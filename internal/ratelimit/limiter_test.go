package ratelimit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLimiter_Check_fixedWindow(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	const limit = 5
	window := time.Minute

	for i := 1; i <= limit; i++ {
		res := l.Check("k", limit, window)
		require.True(t, res.Allowed, "request %d should be allowed", i)
		require.Equal(t, limit-i, res.Remaining)
		require.Equal(t, clock.Now().Add(window), res.ResetAt)
	}

	denied := l.Check("k", limit, window)
	require.False(t, denied.Allowed)
	require.Equal(t, 0, denied.Remaining)
	require.Equal(t, clock.Now().Add(window), denied.ResetAt)

	// exactly at resetAt the window is still current
	clock.Advance(window)
	require.False(t, l.Check("k", limit, window).Allowed)

	// once past resetAt a fresh window starts at count 1
	clock.Advance(time.Millisecond)
	fresh := l.Check("k", limit, window)
	require.True(t, fresh.Allowed)
	require.Equal(t, limit-1, fresh.Remaining)
	require.Equal(t, clock.Now().Add(window), fresh.ResetAt)
}

func TestLimiter_Check_deniedDoesNotExtendWindow(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	first := l.Check("k", 1, time.Minute)
	require.True(t, first.Allowed)

	clock.Advance(30 * time.Second)
	denied := l.Check("k", 1, time.Minute)
	require.False(t, denied.Allowed)
	require.Equal(t, first.ResetAt, denied.ResetAt)
}

func TestLimiter_Check_boundaryBurst(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	// fill the first window late, then the next window early: nearly 2x limit
	// is admitted within a short span, which is accepted fixed-window behaviour.
	l.Check("k", 3, time.Minute)
	clock.Advance(59 * time.Second)
	require.True(t, l.Check("k", 3, time.Minute).Allowed)
	require.True(t, l.Check("k", 3, time.Minute).Allowed)

	clock.Advance(2 * time.Second)
	for range 3 {
		require.True(t, l.Check("k", 3, time.Minute).Allowed)
	}
	require.False(t, l.Check("k", 3, time.Minute).Allowed)
}

func TestLimiter_Check_keysAreIndependent(t *testing.T) {
	l := New()

	require.True(t, l.Check("a", 1, time.Minute).Allowed)
	require.False(t, l.Check("a", 1, time.Minute).Allowed)
	require.True(t, l.Check("b", 1, time.Minute).Allowed)
	require.Equal(t, 2, l.Len())
}

func TestLimiter_Check_concurrent(t *testing.T) {
	l := New()

	const limit = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)

	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("shared", limit, time.Minute).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, limit, allowed)
}

func TestLimiter_Sweep(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	const n = 100
	for i := range n {
		l.Check(fmt.Sprintf("key-%d", i), 10, time.Minute)
	}
	require.Equal(t, n, l.Len())

	// nothing has expired yet
	require.Equal(t, 0, l.Sweep())
	require.Equal(t, n, l.Len())

	clock.Advance(time.Minute + time.Second)
	require.Equal(t, n, l.Sweep())
	require.Equal(t, 0, l.Len())
}

func TestLimiter_Sweep_keepsActiveEntries(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	l.Check("old", 10, time.Second)
	l.Check("new", 10, time.Hour)

	clock.Advance(2 * time.Second)
	require.Equal(t, 1, l.Sweep())
	require.Equal(t, 1, l.Len())
}

func TestLimiter_StartStop(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now), WithSweepInterval(10*time.Millisecond))

	for i := range 10 {
		l.Check(fmt.Sprintf("key-%d", i), 1, time.Second)
	}
	clock.Advance(2 * time.Second)

	l.Start(context.Background())
	defer l.Stop()

	require.Eventually(t, func() bool {
		return l.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestLimiter_StopWithoutStart(t *testing.T) {
	l := New()
	l.Stop()
}

func TestResult_RetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		resetAt  time.Time
		expected time.Duration
	}{
		{name: "whole seconds", resetAt: now.Add(30 * time.Second), expected: 30 * time.Second},
		{name: "rounds up", resetAt: now.Add(29*time.Second + time.Millisecond), expected: 30 * time.Second},
		{name: "already passed", resetAt: now.Add(-time.Second), expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, Result{ResetAt: tt.resetAt}.RetryAfter(now))
		})
	}
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()

	t.Run("overrides and defaults", func(t *testing.T) {
		path := filepath.Join(dir, "rules.yaml")
		err := os.WriteFile(path, []byte("login:\n  limit: 10\n  window: 2m\n"), 0600)
		require.NoError(t, err)

		rules, err := LoadRules(path)
		require.NoError(t, err)
		require.Equal(t, Rule{Limit: 10, Window: 2 * time.Minute}, rules.Login)
		require.Equal(t, DefaultRules().Signup, rules.Signup)
		require.Equal(t, DefaultRules().API, rules.API)
	})

	t.Run("invalid rule", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		err := os.WriteFile(path, []byte("api:\n  limit: 0\n  window: 1m\n"), 0600)
		require.NoError(t, err)

		_, err = LoadRules(path)
		require.Error(t, err)
		require.Contains(t, err.Error(), "api rule")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRules(filepath.Join(dir, "missing.yaml"))
		require.Error(t, err)
	})
}
