package transfer

import (
	"context"

	"github.com/orbit-os/updaterd/internal/connectivity"
)

// ProgressTerminated is the sentinel returned by ProgressBytes when the
// stream ended without explicit success (released, aborted, or failed).
const ProgressTerminated int64 = -1

// Provider performs the actual byte-level network I/O for one artifact.
// The updater core supervises progress and outcome but never touches the
// wire itself.
type Provider interface {
	// HasTarget reports whether a download URL has been set.
	HasTarget() bool

	// SetTarget sets the download URL for subsequent transfers.
	SetTarget(url string)

	// Start transfers bytes into dest beginning at offset, over the given
	// network. It blocks until the transfer completes, fails, or ctx is
	// cancelled.
	Start(ctx context.Context, dest string, network connectivity.Network, offset int64) error

	// ProgressBytes returns the cumulative bytes written for the current
	// transfer, or ProgressTerminated once the stream has ended without
	// explicit success.
	ProgressBytes() int64

	// Release frees any open connection and buffers without discarding
	// bytes already on disk. Idempotent.
	Release()
}
