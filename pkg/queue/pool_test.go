package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := NewPool(PoolConfig{Workers: 3, QueueSize: 8})
	ctx := context.Background()
	p.Start(ctx)

	var done int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		err := p.Submit(ctx, func(context.Context) {
			defer wg.Done()
			atomic.AddInt64(&done, 1)
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	wg.Wait()
	p.Stop()

	if done != 20 {
		t.Fatalf("expected 20 tasks, ran %d", done)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const workers = 2
	p := NewPool(PoolConfig{Workers: workers, QueueSize: 16})
	ctx := context.Background()
	p.Start(ctx)

	var cur, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		_ = p.Submit(ctx, func(context.Context) {
			defer wg.Done()
			n := atomic.AddInt64(&cur, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&cur, -1)
		})
	}
	wg.Wait()
	p.Stop()

	if peak > workers {
		t.Fatalf("observed %d concurrent tasks, limit %d", peak, workers)
	}
}

func TestPoolSubmitHonoursCancelledContext(t *testing.T) {
	p := NewPool(PoolConfig{Workers: 1, QueueSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	block := make(chan struct{})
	_ = p.Submit(ctx, func(context.Context) { <-block })
	_ = p.Submit(ctx, func(context.Context) {}) // fills the buffer

	cancel()
	err := p.Submit(ctx, func(context.Context) {})
	if err == nil {
		t.Fatal("expected error submitting on cancelled context")
	}
	close(block)
	p.Stop()
}

func TestPoolRecoversFromPanic(t *testing.T) {
	p := NewPool(PoolConfig{Workers: 1, QueueSize: 4})
	ctx := context.Background()
	p.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(2)
	_ = p.Submit(ctx, func(context.Context) {
		defer wg.Done()
		panic("bad task")
	})
	ran := false
	_ = p.Submit(ctx, func(context.Context) {
		defer wg.Done()
		ran = true
	})
	wg.Wait()
	p.Stop()

	if !ran {
		t.Fatal("worker did not survive a panicking task")
	}
}
