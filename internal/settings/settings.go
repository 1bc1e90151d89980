package settings

import (
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	settingsBucket = "settings"
	metadataBucket = "metadata"
	schemaVersion  = 1

	keyDownloadDir = "download_dir"
)

// Store persists user preferences in a bbolt database. Currently the only
// preference is the download directory.
type Store struct {
	db *bbolt.DB

	defaultDownloadDir string
}

// NewStore opens (creating if needed) the settings database at dbPath.
// defaultDownloadDir is returned when no preference has been saved.
func NewStore(dbPath, defaultDownloadDir string) (*Store, error) {
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}

	s := &Store{
		db:                 db,
		defaultDownloadDir: defaultDownloadDir,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(settingsBucket)); err != nil {
			return fmt.Errorf("failed to create settings bucket: %w", err)
		}

		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		versionBytes := []byte(fmt.Sprintf("%d", schemaVersion))
		if err := meta.Put([]byte("schema_version"), versionBytes); err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}

		return nil
	})
}

// DownloadDir returns the saved download directory preference, or the
// default when none is set.
func (s *Store) DownloadDir() (string, error) {
	var dir string

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(settingsBucket))
		if bucket == nil {
			return errors.New("settings bucket not found")
		}

		if v := bucket.Get([]byte(keyDownloadDir)); v != nil {
			dir = string(v)
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	if dir == "" {
		return s.defaultDownloadDir, nil
	}

	return dir, nil
}

// SetDownloadDir saves the download directory preference.
func (s *Store) SetDownloadDir(dir string) error {
	if dir == "" {
		return errors.New("download directory cannot be empty")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(settingsBucket))
		if bucket == nil {
			return errors.New("settings bucket not found")
		}

		return bucket.Put([]byte(keyDownloadDir), []byte(dir))
	})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
