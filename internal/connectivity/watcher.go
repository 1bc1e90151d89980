package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/orbit-os/updaterd/internal/logger"
	"github.com/orbit-os/updaterd/internal/task"
)

// Handler receives watcher decisions as commands back into the state
// machine. The watcher never mutates transfer state itself.
type Handler interface {
	// NetworkAvailable is invoked on every transition to available, with
	// the new default network.
	NetworkAvailable(network Network)

	// NetworkLost is invoked on every transition to lost. The handler must
	// stop any in-flight transfer task and release provider resources.
	NetworkLost()

	// ConnectivityTimedOut is invoked once when connectivity is not
	// restored within the grace window.
	ConnectivityTimedOut()

	// TransferFinished reports whether the transfer already reached a
	// terminal finished state; no grace wait is started in that case.
	TransferFinished() bool
}

// Watcher subscribes to default-network transitions and drives
// pause/resume/timeout decisions. It owns the single isOnline flag.
type Watcher struct {
	source  Source
	pool    *task.Pool
	handler Handler

	graceWindow  time.Duration
	pollInterval time.Duration

	mu          sync.Mutex
	online      bool
	network     Network
	graceHandle *task.Handle
}

// NewWatcher creates a watcher. It does not subscribe until Start.
func NewWatcher(source Source, pool *task.Pool, handler Handler, graceWindow, pollInterval time.Duration) *Watcher {
	if graceWindow <= 0 {
		graceWindow = 5 * time.Second
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}

	return &Watcher{
		source:       source,
		pool:         pool,
		handler:      handler,
		graceWindow:  graceWindow,
		pollInterval: pollInterval,
	}
}

// Start subscribes to the connectivity source.
func (w *Watcher) Start() {
	w.source.Register(w)
}

// Stop unsubscribes and cancels any pending grace wait.
func (w *Watcher) Stop() {
	w.source.Unregister()

	w.mu.Lock()
	h := w.graceHandle
	w.graceHandle = nil
	w.mu.Unlock()

	if h != nil {
		h.Cancel()
	}
}

// IsOnline reports the last observed connectivity state.
func (w *Watcher) IsOnline() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.online
}

// Network returns the current default network, zero when offline.
func (w *Watcher) Network() Network {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.network
}

// Available implements Listener.
func (w *Watcher) Available(network Network) {
	w.mu.Lock()
	w.online = true
	w.network = network
	w.mu.Unlock()

	logger.Infof("Network available: %s", network.Name)

	w.handler.NetworkAvailable(network)
}

// Lost implements Listener.
func (w *Watcher) Lost(network Network) {
	w.mu.Lock()
	w.online = false
	w.network = Network{}
	prev := w.graceHandle
	w.graceHandle = nil
	w.mu.Unlock()

	logger.Warnf("Network lost: %s", network.Name)

	if prev != nil {
		prev.Cancel()
	}

	if !w.handler.TransferFinished() {
		w.startGraceWait()
	}

	// Resources are released immediately regardless of the grace outcome.
	w.handler.NetworkLost()
}

// startGraceWait tolerates a brief outage before escalating. The wait runs
// as its own cancellable task and exits silently as soon as the online flag
// flips back.
func (w *Watcher) startGraceWait() {
	h := w.pool.Submit(func(ctx context.Context) {
		start := time.Now()

		for !w.IsOnline() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollInterval):
			}

			if time.Since(start) >= w.graceWindow {
				if !w.IsOnline() {
					w.handler.ConnectivityTimedOut()
				}
				return
			}
		}
	})

	w.mu.Lock()
	w.graceHandle = h
	w.mu.Unlock()
}
