package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter blocks until the caller may proceed or ctx is done.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Every allows one event per interval. The first Wait returns immediately.
// A non-positive interval yields an unlimited limiter.
func Every(interval time.Duration) Limiter {
	if interval <= 0 {
		return Unlimited()
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Gap enforces a pause between units of work measured from the end of one unit, so a unit that
// runs longer than the interval still gets the full pause before the next one starts.
type Gap interface {
	Limiter
	// Done marks the end of a unit. The next Wait returns no earlier than interval after it.
	Done()
}

// After returns a Gap of interval. The first Wait returns immediately; a non-positive interval never waits.
func After(interval time.Duration) Gap {
	return &gap{every: rate.Every(interval), disabled: interval <= 0, lim: rate.NewLimiter(rate.Every(interval), 1)}
}

type gap struct {
	mu       sync.Mutex
	every    rate.Limit
	disabled bool
	lim      *rate.Limiter
}

func (g *gap) Wait(ctx context.Context) error {
	if g.disabled {
		return ctx.Err()
	}
	g.mu.Lock()
	lim := g.lim
	g.mu.Unlock()
	return lim.Wait(ctx)
}

// Done swaps in a fresh bucket and drains its single token, restarting the interval now.
func (g *gap) Done() {
	if g.disabled {
		return
	}
	lim := rate.NewLimiter(g.every, 1)
	lim.Allow()
	g.mu.Lock()
	g.lim = lim
	g.mu.Unlock()
}

type unlimited struct{}

func Unlimited() Limiter { return unlimited{} }

func (unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}
