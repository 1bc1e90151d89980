package task_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/orbit-os/updaterd/internal/task"
)

func TestSubmitRunsTask(t *testing.T) {
	pool := task.NewPool(2)
	defer pool.Shutdown(time.Second)

	done := make(chan struct{})
	pool.Submit(func(ctx context.Context) {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}

func TestHandleDone(t *testing.T) {
	pool := task.NewPool(1)
	defer pool.Shutdown(time.Second)

	h := pool.Submit(func(ctx context.Context) {
		time.Sleep(10 * time.Millisecond)
	})

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("handle never reported done")
	}
}

func TestCancelStopsTask(t *testing.T) {
	pool := task.NewPool(1)
	defer pool.Shutdown(time.Second)

	started := make(chan struct{})
	var observedCancel atomic.Bool

	h := pool.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		observedCancel.Store(true)
	})

	<-started
	h.Cancel()
	h.Wait()

	assert.True(t, observedCancel.Load())
}

func TestCancelBeforeRunSkipsTask(t *testing.T) {
	pool := task.NewPool(1)
	defer pool.Shutdown(time.Second)

	// Occupy the single worker so the next task stays queued.
	block := make(chan struct{})
	pool.Submit(func(ctx context.Context) {
		select {
		case <-block:
		case <-ctx.Done():
		}
	})

	var ran atomic.Bool
	h := pool.Submit(func(ctx context.Context) {
		ran.Store(true)
	})

	h.Cancel()
	close(block)
	h.Wait()

	assert.False(t, ran.Load())
}

func TestBoundedConcurrency(t *testing.T) {
	const workers = 4

	pool := task.NewPool(workers)
	defer pool.Shutdown(time.Second)

	var (
		mu      sync.Mutex
		running int
		peak    int
	)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		pool.Submit(func(ctx context.Context) {
			defer wg.Done()

			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
		})
	}

	wg.Wait()
	assert.LessOrEqual(t, peak, workers)
}

func TestQueueOverflowKeepsWorkerBound(t *testing.T) {
	const workers = 2

	pool := task.NewPool(workers)
	defer pool.Shutdown(5 * time.Second)

	var (
		mu      sync.Mutex
		running int
		peak    int
		ran     int
	)

	// Far more submissions than the queue holds; the excess must wait for
	// a worker slot instead of spawning unbounded goroutines.
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			h := pool.Submit(func(ctx context.Context) {
				mu.Lock()
				running++
				if running > peak {
					peak = running
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				running--
				ran++
				mu.Unlock()
			})
			h.Wait()
		}()
	}

	wg.Wait()

	assert.Equal(t, 100, ran)
	assert.LessOrEqual(t, peak, workers)
}

func TestSubmitAfterShutdown(t *testing.T) {
	pool := task.NewPool(1)
	pool.Shutdown(time.Second)

	h := pool.Submit(func(ctx context.Context) {
		t.Error("task ran after shutdown")
	})

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("handle never finished")
	}
}
