package task

import (
	"context"
	"sync"
	"time"
)

// Handle tracks one submitted task. Cancelling a handle cancels the task's
// context; a task cancelled before a worker picks it up never runs.
type Handle struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	fn     func(ctx context.Context)
}

// Cancel requests cancellation. Safe to call multiple times and after the
// task has finished.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once the task has returned (or was skipped after cancel).
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task has finished.
func (h *Handle) Wait() {
	<-h.done
}

// Pool is a bounded worker pool. All blocking work in the updater runs on
// pool workers so that command dispatch never blocks.
type Pool struct {
	tasks chan *Handle

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool starts a pool with the given number of workers.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		tasks:  make(chan *Handle, 64),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case h, ok := <-p.tasks:
			if !ok {
				return
			}

			if h.ctx.Err() == nil {
				h.fn(h.ctx)
			}
			close(h.done)
		case <-p.ctx.Done():
			return
		}
	}
}

// Submit queues fn for execution and returns its cancellable handle.
// After shutdown the handle is returned already finished.
func (p *Pool) Submit(fn func(ctx context.Context)) *Handle {
	ctx, cancel := context.WithCancel(p.ctx)

	h := &Handle{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		fn:     fn,
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		close(h.done)
		return h
	}
	p.mu.Unlock()

	// A full queue blocks the caller until a worker drains a slot, so the
	// worker bound holds no matter how many commands pile up. Shutdown
	// unblocks the send.
	select {
	case p.tasks <- h:
	case <-p.ctx.Done():
		cancel()
		close(h.done)
	}

	return h
}

// Shutdown cancels all running tasks and waits for workers to exit, up to
// the given timeout.
func (p *Pool) Shutdown(timeout time.Duration) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()

	waitCh := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(timeout):
	}
}
