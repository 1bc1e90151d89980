package config

import (
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const appName = "updaterd"

// Config holds the configuration options for the updater daemon.
type Config struct {
	ManifestURL       string        `yaml:"manifestUrl,omitempty"`
	DownloadDir       string        `yaml:"downloadDir,omitempty"`
	ChecksumAlgorithm string        `yaml:"checksumAlgorithm,omitempty"`
	BuildVersion      string        `yaml:"buildVersion,omitempty"`
	BuildDate         string        `yaml:"buildDate,omitempty"`
	Workers           int           `yaml:"workers,omitempty"`
	PollInterval      time.Duration `yaml:"pollInterval,omitempty"`
	GraceWindow       time.Duration `yaml:"graceWindow,omitempty"`
	GracePollInterval time.Duration `yaml:"gracePollInterval,omitempty"`
}

// GetConfig reads the configuration file and returns a Config struct.
// If the configuration file does not exist, it returns the default
// configuration.
func GetConfig() (*Config, error) {
	configFilePath := filepath.Join(xdg.ConfigHome, appName, "config.yaml")
	defaults := DefaultConfig()

	b, err := os.ReadFile(configFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	return &Config{
		ManifestURL:       zeroOr(cfg.ManifestURL, defaults.ManifestURL),
		DownloadDir:       zeroOr(cfg.DownloadDir, defaults.DownloadDir),
		ChecksumAlgorithm: zeroOr(cfg.ChecksumAlgorithm, defaults.ChecksumAlgorithm),
		BuildVersion:      zeroOr(cfg.BuildVersion, defaults.BuildVersion),
		BuildDate:         zeroOr(cfg.BuildDate, defaults.BuildDate),
		Workers:           zeroOr(cfg.Workers, defaults.Workers),
		PollInterval:      zeroOr(cfg.PollInterval, defaults.PollInterval),
		GraceWindow:       zeroOr(cfg.GraceWindow, defaults.GraceWindow),
		GracePollInterval: zeroOr(cfg.GracePollInterval, defaults.GracePollInterval),
	}, nil
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
