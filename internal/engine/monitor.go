package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orbit-os/updaterd/internal/connectivity"
	"github.com/orbit-os/updaterd/internal/fileutil"
	"github.com/orbit-os/updaterd/internal/logger"
	"github.com/orbit-os/updaterd/internal/phase"
	"github.com/orbit-os/updaterd/internal/progress"
	"github.com/orbit-os/updaterd/internal/transfer"
	"github.com/orbit-os/updaterd/internal/verify"
)

// runTransfer supervises one transfer attempt: the provider's byte stream
// and the progress monitor run under one errgroup so that either ending
// stops the other.
func (e *Engine) runTransfer(ctx context.Context, dest string, network connectivity.Network, offset, total int64) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.transfer.Start(gctx, dest, network, offset)
	})

	var complete bool

	g.Go(func() error {
		done, err := e.monitorTransfer(gctx, total)
		complete = done
		return err
	})

	err := g.Wait()

	if complete {
		// The provider has fully stopped once Wait returns, so the file
		// is safe to read for verification.
		e.finishTransfer()
		return
	}

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Errorf("Transfer ended without success: %v", err)
	}
}

// monitorTransfer polls the provider's cumulative byte count. It terminates
// normally only when the count reaches the expected total; the sentinel
// value means the stream ended without explicit success and is treated as
// silent termination.
func (e *Engine) monitorTransfer(ctx context.Context, total int64) (bool, error) {
	interval := e.cfg.PollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(interval):
		}

		n := e.transfer.ProgressBytes()
		if n == transfer.ProgressTerminated {
			return false, nil
		}

		e.publishProgress(n, total)

		if total > 0 && n >= total {
			return true, nil
		}
	}
}

// publishProgress emits byte and percent updates only on strict increase,
// keeping observer notifications monotonic and non-redundant.
func (e *Engine) publishProgress(n, total int64) {
	e.mu.Lock()

	if n <= e.downloaded {
		e.mu.Unlock()
		return
	}

	e.downloaded = n

	pct := progress.Percent(n, total)
	emitPct := pct > e.percent
	if emitPct {
		e.percent = pct
	}
	e.mu.Unlock()

	text := progress.FormatText(n, total)

	e.notify(func(o Observer) {
		o.OnProgressBytes(text)
		if emitPct {
			o.OnProgressPercent(pct)
		}
	})
}

// finishTransfer marks the transfer complete and hands off to verification.
func (e *Engine) finishTransfer() {
	e.mu.Lock()
	if e.phase != phase.Downloading {
		// Cancelled or superseded while the final poll was in flight.
		e.mu.Unlock()
		return
	}

	e.phase = phase.Verifying
	e.finished = true
	e.transferHandle = nil
	e.mu.Unlock()

	logger.Infof("Transfer finished, verifying checksum")

	e.notify(Observer.OnTransferFinished)

	e.runVerification()
}

// runVerification streams the destination file through the configured
// digest and reports the outcome. A mismatch deletes the artifact so a
// corrupted file never lingers as if valid.
func (e *Engine) runVerification() {
	e.mu.Lock()
	desc := e.desc
	dest := e.dest
	algorithm := e.cfg.ChecksumAlgorithm
	e.phase = phase.Verifying
	e.mu.Unlock()

	if desc == nil || dest == "" {
		return
	}
	if algorithm == "" {
		algorithm = verify.DefaultAlgorithm
	}

	passed, err := verify.File(dest, desc.Checksum, algorithm)
	if err != nil {
		switch {
		case errors.Is(err, verify.ErrAlgorithmUnavailable):
			// Configuration defect: verification cannot complete at all.
			logger.Errorf("Checksum verification impossible: %v", err)
			e.setIdleAfterVerification(false)
		case errors.Is(err, verify.ErrFileMissing):
			logger.Errorf("Verification target missing: %v", err)
			e.resetTransferState()
		default:
			logger.Errorf("Verification failed to read file: %v", err)
			e.setIdleAfterVerification(false)
		}

		return
	}

	if passed {
		e.mu.Lock()
		e.finished = true
		e.phase = phase.VerifiedOk
		e.mu.Unlock()

		logger.Infof("Checksum verified for cycle %s", desc.ID)
	} else {
		logger.Warnf("Checksum mismatch for cycle %s, deleting artifact", desc.ID)

		if err := fileutil.Delete(dest); err != nil {
			logger.Errorf("Unable to delete %s: %v", dest, err)
		}

		e.resetTransferState()

		e.mu.Lock()
		e.phase = phase.VerifiedFailed
		e.mu.Unlock()
	}

	e.notify(func(o Observer) {
		o.OnVerificationResult(passed)
	})
}

// resetTransferState zeroes the in-memory counters so a later check treats
// the artifact as not yet downloaded.
func (e *Engine) resetTransferState() {
	e.mu.Lock()
	e.downloaded = 0
	e.percent = 0
	e.finished = false
	e.phase = phase.Idle
	e.mu.Unlock()
}

func (e *Engine) setIdleAfterVerification(finished bool) {
	e.mu.Lock()
	e.finished = finished
	e.phase = phase.Idle
	e.mu.Unlock()
}
