// Copyright (C) 2017 ScyllaDB

package repair

import (
	"context"
	"sync"
)

// pool executes submitted jobs on a fixed set of workers. It bounds the
// number of segments repaired simultaneously across all runs, supervisors
// submit segment jobs and never occupy a slot themselves.
type pool struct {
	tasks  chan func(context.Context)
	wait   sync.WaitGroup
	closed bool
	mu     sync.Mutex
}

func newPool(ctx context.Context, size int) *pool {
	p := &pool{
		tasks: make(chan func(context.Context)),
	}
	p.wait.Add(size)
	for i := 0; i < size; i++ {
		go p.worker(ctx)
	}
	return p
}

func (p *pool) worker(ctx context.Context) {
	defer p.wait.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.tasks:
			if !ok {
				return
			}
			job(ctx)
		}
	}
}

// Submit hands a job to a free worker, it blocks until a worker picks the
// job up or ctx is canceled.
func (p *pool) Submit(ctx context.Context, job func(context.Context)) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.tasks <- job:
		return nil
	}
}

// Close makes the workers exit once the queued jobs are drained.
func (p *pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	close(p.tasks)
	p.closed = true
}

// Wait returns when all workers have exited.
func (p *pool) Wait() {
	p.wait.Wait()
}
