package engine

import "github.com/orbit-os/updaterd/internal/build"

// StateFlags summarize the current cycle for an observer reattaching after
// a presentation-layer restart.
type StateFlags struct {
	Paused   bool
	Finished bool
}

// Observer is the boundary to the presentation layer. The engine holds the
// observer as an optional reference; every notification is a no-op while
// detached, and each fires at most once per logical transition.
type Observer interface {
	// RestoreState replays the current cycle to a freshly attached
	// observer instead of requiring it to have seen every transition.
	RestoreState(desc *build.Descriptor, flags StateFlags, downloaded, total int64)

	OnDescriptorFetched(desc *build.Descriptor)
	OnFetchFailed()
	OnNoUpdate()
	OnNoConnectivity()

	// OnInitialProgress reports the resume offset when a transfer starts.
	OnInitialProgress(downloaded, total int64)
	OnProgressBytes(text string)
	OnProgressPercent(percent int)

	OnTransferFinished()
	OnVerificationResult(passed bool)
}
