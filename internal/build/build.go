package build

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNoUpdate is returned by a provider when the remote build is not
	// newer than the running one.
	ErrNoUpdate = errors.New("no new update available")
)

// Descriptor is an immutable record describing one downloadable update
// artifact. It is created when a remote check succeeds and held for the
// lifetime of one update cycle.
type Descriptor struct {
	ID       uuid.UUID
	FileName string
	FileSize int64
	Checksum string // lower-case hex digest of the artifact
	URL      string
	Version  string
	Date     string
	Metadata map[string]string // opaque display fields
}

// Provider fetches metadata describing the latest available artifact.
type Provider interface {
	// Fetch returns the descriptor of a new build, ErrNoUpdate when the
	// remote build is not newer, or a fetch error.
	Fetch(ctx context.Context) (*Descriptor, error)
}
