package config

import (
	"time"

	"github.com/adrg/xdg"
)

const (
	defaultChecksumAlgorithm = "md5"
	defaultWorkers           = 4
	defaultPollInterval      = 100 * time.Millisecond
	defaultGraceWindow       = 5 * time.Second
	defaultGracePollInterval = 500 * time.Millisecond
)

// DefaultConfig returns the built-in defaults. The manifest URL and build
// identity have no sane defaults and must come from the config file or
// the caller.
func DefaultConfig() Config {
	return Config{
		DownloadDir:       xdg.UserDirs.Download,
		ChecksumAlgorithm: defaultChecksumAlgorithm,
		Workers:           defaultWorkers,
		PollInterval:      defaultPollInterval,
		GraceWindow:       defaultGraceWindow,
		GracePollInterval: defaultGracePollInterval,
	}
}
