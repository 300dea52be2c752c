package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func TestDeterministicClock_StartsAtBase(t *testing.T) {
	clock := NewDeterministicClock(base, time.Second)
	assert.Equal(t, base, clock.Now())
	assert.Equal(t, int64(1), clock.Calls())
}

func TestDeterministicClock_AdvancesByStep(t *testing.T) {
	clock := NewDeterministicClock(base, time.Second)

	assert.Equal(t, base, clock.Now())
	assert.Equal(t, base.Add(time.Second), clock.Now())
	assert.Equal(t, base.Add(2*time.Second), clock.Now())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock(base, time.Minute)
	clock.Now()
	clock.Now()

	clock.Reset()
	assert.Equal(t, base, clock.Now())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock(base, time.Nanosecond)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	seen := make(chan time.Time, numGoroutines*callsPerGoroutine)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				seen <- clock.Now()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[time.Time]bool)
	for ts := range seen {
		require.False(t, unique[ts], "duplicate time %v", ts)
		unique[ts] = true
	}
	assert.Len(t, unique, numGoroutines*callsPerGoroutine)
}

func TestFakeSleeper_RecordsWithoutWaiting(t *testing.T) {
	var s FakeSleeper
	start := time.Now()
	require.NoError(t, s.Sleep(context.Background(), time.Hour))
	require.NoError(t, s.Sleep(context.Background(), time.Minute))

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 2, s.Calls())
	assert.Equal(t, []time.Duration{time.Hour, time.Minute}, s.Durations())
}

func TestFakeSleeper_HonoursCancellation(t *testing.T) {
	var s FakeSleeper
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Sleep(ctx, time.Second), context.Canceled)
	assert.Equal(t, 0, s.Calls())
}

func TestFixedIDGenerator(t *testing.T) {
	assert.Equal(t, "abc", NewFixedIDGenerator("abc").Generate())
	assert.Equal(t, "test-id-default", NewFixedIDGenerator("").Generate())
}
