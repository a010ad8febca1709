package twelvedata

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalGate_FirstCallPassesImmediately(t *testing.T) {
	gate := newIntervalGate(time.Second)

	start := time.Now()
	require.NoError(t, gate.Wait(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestIntervalGate_EnforcesSpacing(t *testing.T) {
	const interval = 40 * time.Millisecond
	gate := newIntervalGate(interval)
	ctx := context.Background()

	var times []time.Time
	for i := 0; i < 3; i++ {
		require.NoError(t, gate.Wait(ctx))
		times = append(times, time.Now())
	}

	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		assert.GreaterOrEqual(t, gap, interval-5*time.Millisecond,
			"calls %d and %d fired %v apart", i-1, i, gap)
	}
}

func TestIntervalGate_ConcurrentCallersNeverShareASlot(t *testing.T) {
	const (
		interval = 30 * time.Millisecond
		callers  = 5
	)
	gate := newIntervalGate(interval)

	var mu sync.Mutex
	var times []time.Time
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, gate.Wait(context.Background()))
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, times, callers)
	for i := 0; i < len(times); i++ {
		for j := i + 1; j < len(times); j++ {
			gap := times[i].Sub(times[j])
			if gap < 0 {
				gap = -gap
			}
			assert.GreaterOrEqual(t, gap, interval-5*time.Millisecond,
				"two callers fired %v apart", gap)
		}
	}
}

func TestIntervalGate_CancelledContextReturnsEarly(t *testing.T) {
	gate := newIntervalGate(time.Minute)
	require.NoError(t, gate.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := gate.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
