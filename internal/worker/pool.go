package worker

import (
	"context"
	"errors"
	"sync"
)

type job func(ctx context.Context)

// Pool runs harvesting jobs with bounded concurrency and a bounded queue.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan job
	wg     sync.WaitGroup
}

// NewPool creates a pool with the given concurrency and queue size.
func NewPool(parent context.Context, concurrency, queueSize int) (*Pool, error) {
	if concurrency <= 0 || queueSize <= 0 {
		return nil, errors.New("worker pool requires positive concurrency and queue size")
	}
	ctx, cancel := context.WithCancel(parent)
	pool := &Pool{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan job, queueSize),
	}
	pool.start(concurrency)
	return pool, nil
}

func (p *Pool) start(concurrency int) {
	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-p.ctx.Done():
					return
				case job := <-p.jobs:
					job(p.ctx)
				}
			}
		}()
	}
}

// Submit schedules a job, blocking while the queue is full. It rejects once
// either context is cancelled or the pool has been closed.
func (p *Pool) Submit(ctx context.Context, fn job) error {
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	default:
	}
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- fn:
		return nil
	}
}

// Close stops all workers and waits for in-flight jobs to return. The jobs
// channel is left open so a racing Submit fails instead of panicking.
func (p *Pool) Close() {
	p.cancel()
	p.wg.Wait()
}
