package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer spaces out provider requests. Each Wait blocks until at least
// the minimum interval has passed since the previous grant, then adds a
// random jitter so bursts from parallel workers do not align.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	jitter   time.Duration
	next     time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
	rng   *rand.Rand
}

func NewPacer(interval, jitter time.Duration) *Pacer {
	return &Pacer{
		interval: interval,
		jitter:   jitter,
		now:      time.Now,
		sleep:    sleepCtx,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wait blocks until this caller's slot arrives or ctx is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	now := p.now()
	slot := p.next
	if slot.Before(now) {
		slot = now
	}
	step := p.interval
	if p.jitter > 0 {
		step += time.Duration(p.rng.Int63n(int64(p.jitter) + 1))
	}
	p.next = slot.Add(step)
	p.mu.Unlock()

	if d := slot.Sub(now); d > 0 {
		return p.sleep(ctx, d)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
