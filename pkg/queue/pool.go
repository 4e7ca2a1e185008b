package queue

import (
	"context"
	"fmt"
	"sync"

	applogger "SqueezeScan/pkg/logger"
)

// Task is one unit of work dispatched to the pool.
type Task func(ctx context.Context)

// PoolConfig contains the configuration for the worker pool.
type PoolConfig struct {
	Workers   int // number of workers
	QueueSize int // size of the pending-task buffer
}

// Pool is a bounded in-process worker pool. Tasks are executed by a
// fixed set of goroutines; Submit blocks once the buffer is full, which
// gives callers natural backpressure against the data provider.
type Pool struct {
	cfg   PoolConfig
	tasks chan Task
	wg    sync.WaitGroup
	l     *applogger.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// NewPool creates a pool. It does not start workers; call Start.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 2
	}
	return &Pool{
		cfg:   cfg,
		tasks: make(chan Task, cfg.QueueSize),
		done:  make(chan struct{}),
	}
}

// SetLogger injects a structured logger.
func (p *Pool) SetLogger(l *applogger.Logger) { p.l = l }

// Start launches the workers. Workers exit when ctx is cancelled or the
// pool is stopped, whichever comes first.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.cfg.Workers; i++ {
			p.wg.Add(1)
			go p.worker(ctx, i)
		}
	})
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(ctx, id, task)
		}
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil && p.l != nil {
			p.l.Error("worker task panicked",
				applogger.Int("worker", id),
				applogger.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	task(ctx)
}

// Submit enqueues a task, blocking while the buffer is full. Returns
// ctx.Err() if the context is cancelled before the task is accepted.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return context.Canceled
	case p.tasks <- task:
		return nil
	}
}

// Stop prevents further submissions and waits for in-flight tasks.
// Buffered tasks that have not started are dropped.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}
