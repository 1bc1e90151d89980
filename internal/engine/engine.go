package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/orbit-os/updaterd/internal/build"
	"github.com/orbit-os/updaterd/internal/config"
	"github.com/orbit-os/updaterd/internal/connectivity"
	"github.com/orbit-os/updaterd/internal/fileutil"
	"github.com/orbit-os/updaterd/internal/logger"
	"github.com/orbit-os/updaterd/internal/phase"
	"github.com/orbit-os/updaterd/internal/progress"
	"github.com/orbit-os/updaterd/internal/task"
	"github.com/orbit-os/updaterd/internal/transfer"
)

const shutdownTimeout = 10 * time.Second

// SettingsStore provides the persisted download directory preference.
type SettingsStore interface {
	DownloadDir() (string, error)
}

// Engine owns the update cycle lifecycle: metadata check, transfer
// supervision, pause/resume/cancel, and checksum verification. All blocking
// work runs on the bounded task pool; command methods dispatch and return
// immediately.
type Engine struct {
	cfg      *config.Config
	provider build.Provider
	transfer transfer.Provider
	settings SettingsStore
	pool     *task.Pool
	watcher  *connectivity.Watcher

	obsMu    sync.RWMutex
	observer Observer

	// mu guards the transfer state below. Fields are mutated only from
	// pool tasks; the watcher issues commands rather than touching them.
	mu             sync.Mutex
	phase          phase.Phase
	desc           *build.Descriptor
	dest           string
	downloaded     int64
	total          int64
	percent        int
	finished       bool
	network        connectivity.Network
	transferHandle *task.Handle
	starting       bool

	running bool
}

// New wires an engine from its collaborators. Call Start before issuing
// commands.
func New(cfg *config.Config, provider build.Provider, tp transfer.Provider, source connectivity.Source, settings SettingsStore) *Engine {
	if cfg == nil {
		defaults := config.DefaultConfig()
		cfg = &defaults
	}

	e := &Engine{
		cfg:      cfg,
		provider: provider,
		transfer: tp,
		settings: settings,
		pool:     task.NewPool(cfg.Workers),
		phase:    phase.Idle,
	}

	e.watcher = connectivity.NewWatcher(source, e.pool, e, cfg.GraceWindow, cfg.GracePollInterval)

	return e
}

// Start subscribes to connectivity events and accepts commands.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.watcher.Start()
}

// Shutdown stops the watcher, cancels any in-flight transfer, and drains
// the task pool.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	h := e.transferHandle
	e.transferHandle = nil
	e.mu.Unlock()

	e.watcher.Stop()

	if h != nil {
		h.Cancel()
	}
	e.transfer.Release()

	e.pool.Shutdown(shutdownTimeout)
}

// Attach registers the observer. The engine keeps only this weak reference
// and replays state on the next CheckForUpdate rather than re-sending past
// transitions.
func (e *Engine) Attach(o Observer) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()

	e.observer = o
}

// Detach clears the observer; subsequent notifications become no-ops.
func (e *Engine) Detach() {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()

	e.observer = nil
}

func (e *Engine) notify(fn func(Observer)) {
	e.obsMu.RLock()
	o := e.observer
	e.obsMu.RUnlock()

	if o != nil {
		fn(o)
	}
}

// Phase returns the current lifecycle phase.
func (e *Engine) Phase() phase.Phase {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.phase
}

// Descriptor returns the descriptor of the current cycle, nil when none.
func (e *Engine) Descriptor() *build.Descriptor {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.desc
}

// Downloaded returns the in-memory transfer state counters.
func (e *Engine) Downloaded() (downloaded, total int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.downloaded, e.total
}

// CheckForUpdate queries the metadata provider, or replays current state to
// the observer when a transfer is in progress or already finished.
func (e *Engine) CheckForUpdate() {
	e.pool.Submit(e.checkForUpdate)
}

// StartDownload begins or resumes the transfer for the current descriptor.
func (e *Engine) StartDownload() {
	e.pool.Submit(e.startDownload)
}

// Pause suspends the transfer when true; when false, resumes a paused
// transfer from the current on-disk offset.
func (e *Engine) Pause(pause bool) {
	e.pool.Submit(func(ctx context.Context) {
		if pause {
			e.pauseTransfer()
		} else {
			e.resumeTransfer(ctx)
		}
	})
}

// Cancel stops any in-flight transfer and resets the transfer state. The
// partial file stays on disk.
func (e *Engine) Cancel() {
	e.pool.Submit(func(ctx context.Context) {
		e.cancelTransfer()
	})
}

// Delete removes the destination file. Never deletes directories.
func (e *Engine) Delete() {
	e.pool.Submit(func(ctx context.Context) {
		e.mu.Lock()
		dest := e.dest
		e.mu.Unlock()

		if dest == "" {
			return
		}

		if err := fileutil.Delete(dest); err != nil {
			logger.Errorf("Unable to delete %s: %v", dest, err)
		}
	})
}

// Export copies the downloaded artifact to dst, typically user-chosen
// storage outside the managed download directory.
func (e *Engine) Export(dst string) {
	e.pool.Submit(func(ctx context.Context) {
		e.mu.Lock()
		dest := e.dest
		e.mu.Unlock()

		if dest == "" {
			logger.Warnf("Export requested without an artifact")
			return
		}

		if err := fileutil.Copy(dest, dst); err != nil {
			logger.Errorf("Unable to export %s: %v", dest, err)
		}
	})
}

func (e *Engine) checkForUpdate(ctx context.Context) {
	e.mu.Lock()

	if e.phase == phase.Fetching {
		e.mu.Unlock()
		return
	}

	if !e.phase.Quiescent() || e.finished {
		desc, flags, downloaded, total := e.snapshotLocked()
		reverify := e.finished
		e.mu.Unlock()

		e.notify(func(o Observer) {
			o.RestoreState(desc, flags, downloaded, total)
		})

		if reverify {
			e.runVerification()
		}

		return
	}

	e.phase = phase.Fetching
	e.mu.Unlock()

	desc, err := e.provider.Fetch(ctx)
	if err != nil {
		e.mu.Lock()
		if errors.Is(err, build.ErrNoUpdate) {
			e.phase = phase.NoUpdate
			e.mu.Unlock()
			e.notify(Observer.OnNoUpdate)
			return
		}

		e.phase = phase.Idle
		e.mu.Unlock()

		if errors.Is(err, context.Canceled) {
			return
		}

		logger.Errorf("Build manifest fetch failed: %v", err)
		e.notify(Observer.OnFetchFailed)

		return
	}

	e.mu.Lock()
	e.desc = desc
	e.total = desc.FileSize

	if err := e.resolveDestLocked(); err != nil {
		e.phase = phase.Idle
		e.mu.Unlock()
		logger.Errorf("Failed to resolve destination: %v", err)
		e.notify(Observer.OnFetchFailed)
		return
	}

	if e.refreshFromDiskLocked() {
		// Artifact already fully present: replay terminal state and verify.
		e.finished = true
		snapDesc, flags, downloaded, total := e.snapshotLocked()
		e.mu.Unlock()

		e.notify(func(o Observer) {
			o.RestoreState(snapDesc, flags, downloaded, total)
		})
		e.runVerification()

		return
	}

	e.phase = phase.Ready
	e.mu.Unlock()

	logger.Infof("New build available: cycle=%s file=%s", desc.ID, desc.FileName)
	e.notify(func(o Observer) {
		o.OnDescriptorFetched(desc)
	})
}

func (e *Engine) startDownload(ctx context.Context) {
	e.mu.Lock()

	if e.desc == nil {
		e.mu.Unlock()
		logger.Warnf("Download requested without a descriptor")
		return
	}

	// Idempotent while a transfer task is running or being launched. The
	// starting marker closes the gap between flipping the phase and
	// holding the submitted handle, so a re-entrant start (an observer
	// reacting to a notification) can never spawn a second writer.
	if e.phase == phase.Downloading && (e.transferHandle != nil || e.starting) {
		e.mu.Unlock()
		return
	}

	if err := e.resolveDestLocked(); err != nil {
		e.mu.Unlock()
		logger.Errorf("Failed to resolve destination: %v", err)
		return
	}

	if e.refreshFromDiskLocked() {
		e.finished = true
		desc, flags, downloaded, total := e.snapshotLocked()
		e.mu.Unlock()

		e.notify(func(o Observer) {
			o.RestoreState(desc, flags, downloaded, total)
		})
		e.runVerification()

		return
	}

	e.phase = phase.Downloading
	e.starting = true

	if !e.transfer.HasTarget() {
		e.transfer.SetTarget(e.desc.URL)
	}

	dest := e.dest
	offset := e.downloaded
	total := e.total
	network := e.network
	e.percent = progress.Percent(offset, total)
	e.mu.Unlock()

	handle := e.pool.Submit(func(taskCtx context.Context) {
		e.runTransfer(taskCtx, dest, network, offset, total)
	})

	e.mu.Lock()
	e.starting = false
	if e.phase != phase.Downloading {
		// Paused or cancelled while the task was being launched; the
		// fresh task must not survive the command that arrived first.
		e.mu.Unlock()

		e.stopTask(handle)
		e.transfer.Release()

		return
	}
	e.transferHandle = handle
	e.mu.Unlock()

	e.notify(func(o Observer) {
		o.OnInitialProgress(offset, total)
	})
}

func (e *Engine) pauseTransfer() {
	e.mu.Lock()
	if e.phase != phase.Downloading {
		e.mu.Unlock()
		return
	}

	e.phase = phase.Paused
	h := e.transferHandle
	e.transferHandle = nil
	e.mu.Unlock()

	e.stopTask(h)
	e.transfer.Release()

	logger.Infof("Download paused at %d bytes", e.mustDownloaded())
}

func (e *Engine) resumeTransfer(ctx context.Context) {
	e.mu.Lock()
	if e.phase != phase.Paused {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.startDownload(ctx)
}

func (e *Engine) cancelTransfer() {
	e.mu.Lock()
	if e.phase == phase.Idle && !e.finished {
		e.mu.Unlock()
		return
	}

	e.phase = phase.Cancelled
	e.downloaded = 0
	e.percent = 0
	e.finished = false
	h := e.transferHandle
	e.transferHandle = nil
	e.mu.Unlock()

	e.stopTask(h)
	e.transfer.Release()

	logger.Infof("Download cancelled")
}

// stopTask cancels a transfer task and waits for it to exit, guaranteeing
// at most one writer to the destination file.
func (e *Engine) stopTask(h *task.Handle) {
	if h == nil {
		return
	}

	h.Cancel()

	select {
	case <-h.Done():
	case <-time.After(shutdownTimeout):
		logger.Warnf("Transfer task did not stop in time")
	}
}

// NetworkAvailable implements connectivity.Handler. On network handoff an
// unpaused transfer is restarted so it resumes on the new path.
func (e *Engine) NetworkAvailable(network connectivity.Network) {
	e.pool.Submit(func(ctx context.Context) {
		e.mu.Lock()
		e.network = network
		active := e.phase == phase.Downloading
		var h *task.Handle
		if active {
			h = e.transferHandle
			e.transferHandle = nil
		}
		e.mu.Unlock()

		if !active {
			return
		}

		e.stopTask(h)
		e.transfer.Release()
		e.startDownload(ctx)
	})
}

// NetworkLost implements connectivity.Handler. The in-flight task and
// provider resources are released immediately; the phase stays Downloading
// so the transfer restarts when connectivity returns.
func (e *Engine) NetworkLost() {
	e.pool.Submit(func(ctx context.Context) {
		e.mu.Lock()
		e.network = connectivity.Network{}
		h := e.transferHandle
		e.transferHandle = nil
		e.mu.Unlock()

		e.stopTask(h)
		e.transfer.Release()
	})
}

// ConnectivityTimedOut implements connectivity.Handler.
func (e *Engine) ConnectivityTimedOut() {
	e.notify(Observer.OnNoConnectivity)
}

// TransferFinished implements connectivity.Handler.
func (e *Engine) TransferFinished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.finished
}

// resolveDestLocked derives the destination path from the configured
// download directory and the descriptor file name.
func (e *Engine) resolveDestLocked() error {
	dir, err := e.settings.DownloadDir()
	if err != nil {
		return fmt.Errorf("failed to read download directory setting: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	e.dest = filepath.Join(dir, e.desc.FileName)

	return nil
}

// refreshFromDiskLocked syncs downloadedBytes with the on-disk length, the
// authoritative resumption checkpoint. Reports whether the artifact is
// already fully present.
func (e *Engine) refreshFromDiskLocked() bool {
	size, err := fileutil.Size(e.dest)
	if err != nil {
		logger.Warnf("Failed to stat %s: %v", e.dest, err)
		size = 0
	}

	e.downloaded = size

	return e.total > 0 && size == e.total
}

func (e *Engine) snapshotLocked() (*build.Descriptor, StateFlags, int64, int64) {
	flags := StateFlags{
		Paused:   e.phase == phase.Paused,
		Finished: e.finished,
	}

	return e.desc, flags, e.downloaded, e.total
}

func (e *Engine) mustDownloaded() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.downloaded
}
