package testutil

import (
	"context"
	"sync"
	"time"
)

// DeterministicClock is a wall clock for tests that advances by a fixed
// step on every call to Now.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	base time.Time
	step time.Duration
	n    int64
}

// NewDeterministicClock creates a clock whose first Now() returns base.
func NewDeterministicClock(base time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{base: base, step: step}
}

// Now returns base + n*step and increments n.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.base.Add(time.Duration(c.n) * c.step)
	c.n++
	return t
}

// Calls returns how many times Now was called.
func (c *DeterministicClock) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Reset rewinds the clock so the next Now() returns base again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}

// FakeSleeper records requested pauses without waiting.
// It still honours context cancellation.
type FakeSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

// Sleep records d and returns immediately.
func (s *FakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
	return nil
}

// Calls returns the number of Sleep calls.
func (s *FakeSleeper) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slept)
}

// Durations returns a copy of the requested pauses.
func (s *FakeSleeper) Durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}
