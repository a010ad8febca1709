package twelvedata

import (
	"context"
	"sync"
	"time"

	"github.com/almatkai/woolet-sub004/internal/metrics"
)

// DefaultMinInterval keeps the client at or under 8 requests per minute,
// the provider's free-tier budget.
const DefaultMinInterval = 7500 * time.Millisecond

// intervalGate is a process-wide fixed-interval throttle. Every outbound
// provider call reserves the next free slot under the mutex, so no two
// calls can ever fire within the interval, regardless of how many
// goroutines are queued.
type intervalGate struct {
	mu       sync.Mutex
	interval time.Duration
	nextSlot time.Time
}

func newIntervalGate(interval time.Duration) *intervalGate {
	if interval <= 0 {
		interval = DefaultMinInterval
	}
	return &intervalGate{interval: interval}
}

// Wait blocks until the caller's reserved slot arrives. A cancelled
// context returns early but the slot stays consumed; the next caller is
// still held to the interval.
func (g *intervalGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	now := time.Now()
	wait := g.nextSlot.Sub(now)
	if wait < 0 {
		wait = 0
	}
	g.nextSlot = now.Add(wait).Add(g.interval)
	g.mu.Unlock()

	if wait == 0 {
		return nil
	}

	metrics.RecordThrottleWait(wait)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Interval returns the configured minimum spacing between calls.
func (g *intervalGate) Interval() time.Duration {
	return g.interval
}
