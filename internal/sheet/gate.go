package sheet

import (
	"context"
	"sync"
	"time"
)

// Gate enforces the request budget the hosted spreadsheet API allows.
// It combines a rolling one-minute window counter with a minimum spacing
// between consecutive calls. All client requests pass through Wait before
// touching the network.
type Gate struct {
	mu          sync.Mutex
	budget      int
	window      time.Duration
	minInterval time.Duration
	maxWait     time.Duration

	windowStart time.Time
	count       int
	lastCall    time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewGate builds a limiter with the given per-minute budget, minimum
// inter-call spacing, and an upper bound on how long a single Wait may block.
// Non-positive arguments fall back to the documented API defaults.
func NewGate(budget int, minInterval, maxWait time.Duration) *Gate {
	if budget <= 0 {
		budget = 50
	}
	if minInterval <= 0 {
		minInterval = 1200 * time.Millisecond
	}
	if maxWait <= 0 {
		maxWait = 90 * time.Second
	}
	return &Gate{
		budget:      budget,
		window:      time.Minute,
		minInterval: minInterval,
		maxWait:     maxWait,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// Wait blocks until the next request is allowed. When the window budget is
// exhausted it sleeps to the window boundary; if the accumulated wait would
// exceed the configured maximum the call proceeds anyway so a clock anomaly
// cannot stall the run forever.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	waited := time.Duration(0)
	for {
		now := g.now()
		if g.windowStart.IsZero() || now.Sub(g.windowStart) >= g.window {
			g.windowStart = now
			g.count = 0
		}

		var pause time.Duration
		if !g.lastCall.IsZero() {
			if gap := g.minInterval - now.Sub(g.lastCall); gap > pause {
				pause = gap
			}
		}
		if g.count >= g.budget {
			if gap := g.window - now.Sub(g.windowStart); gap > pause {
				pause = gap
			}
		}

		if pause <= 0 || waited >= g.maxWait {
			g.count++
			g.lastCall = g.now()
			return nil
		}
		if waited+pause > g.maxWait {
			pause = g.maxWait - waited
		}
		if err := g.sleep(ctx, pause); err != nil {
			return err
		}
		waited += pause
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
