// Package workerpool bounds the number of concurrently running pipeline
// jobs so decoding and inference never starve the request accept loop.
package workerpool

import (
	"context"
	"errors"
	"sync"
)

var ErrShutdown = errors.New("worker pool is shut down")

type task struct {
	fn   func()
	done chan struct{}
}

type Pool struct {
	tasks  chan task
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func New(workerCount, queueSize int) *Pool {
	p := &Pool{
		tasks: make(chan task, queueSize),
	}
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		t.fn()
		close(t.done)
	}
}

// Execute runs fn on a pool worker and blocks until it finishes. The ctx
// only bounds the wait for a free queue slot: once accepted, fn always
// runs to completion and Execute waits for it, so finished work is never
// wasted and the caller's variables are safe to read after return.
func (p *Pool) Execute(ctx context.Context, fn func()) error {
	t := task{fn: fn, done: make(chan struct{})}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrShutdown
	}
	select {
	case p.tasks <- t:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}

	<-t.done
	return nil
}

// Shutdown stops accepting new work and waits for every accepted task,
// queued or running, to finish.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
