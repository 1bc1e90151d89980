package phase

import "fmt"

// Phase is the discrete lifecycle state of an update cycle. It replaces the
// started/paused/finished flag combinations with a single tagged value.
type Phase int32

const (
	Idle Phase = iota
	Fetching
	NoUpdate
	Ready
	Downloading
	Paused
	Verifying
	VerifiedOk
	VerifiedFailed
	Cancelled
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "Idle"
	case Fetching:
		return "Fetching"
	case NoUpdate:
		return "NoUpdate"
	case Ready:
		return "Ready"
	case Downloading:
		return "Downloading"
	case Paused:
		return "Paused"
	case Verifying:
		return "Verifying"
	case VerifiedOk:
		return "VerifiedOk"
	case VerifiedFailed:
		return "VerifiedFailed"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Unknown(%d)", p)
	}
}

// Quiescent reports whether a new metadata check may query the network.
// Phases with a transfer in flight or pending verification are not quiescent.
func (p Phase) Quiescent() bool {
	switch p {
	case Idle, NoUpdate, Ready, VerifiedFailed, Cancelled:
		return true
	default:
		return false
	}
}
