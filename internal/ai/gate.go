package ai

import (
	"context"
	"sync"
	"time"
)

// gate spaces dispatches at least interval apart. Callers reserve the next
// free slot under the lock and then sleep outside it, so concurrent callers
// queue up one interval behind each other.
type gate struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

func newGate(interval time.Duration) *gate {
	return &gate{interval: interval}
}

// Wait blocks until the caller's slot opens or ctx is done.
func (g *gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	now := time.Now()
	slot := g.next
	if slot.Before(now) {
		slot = now
	}
	g.next = slot.Add(g.interval)
	g.mu.Unlock()

	return sleep(ctx, time.Until(slot))
}

// sleep is a context-aware time.Sleep.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
