package verify

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

const chunkSize = 1 << 20 // 1 MiB read buffer

var (
	// ErrFileMissing is reported when verification targets an absent file,
	// distinct from a checksum mismatch.
	ErrFileMissing = errors.New("file to verify does not exist")

	// ErrAlgorithmUnavailable indicates the configured digest is not known
	// to this build. A configuration defect, not a runtime condition.
	ErrAlgorithmUnavailable = errors.New("checksum algorithm unavailable")
)

// DefaultAlgorithm matches the digest published in build manifests.
const DefaultAlgorithm = "md5"

func newDigest(algorithm string) (hash.Hash, error) {
	switch strings.ToLower(algorithm) {
	case "md5":
		return md5.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "sha256":
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAlgorithmUnavailable, algorithm)
	}
}

// Checksum streams the file through the named digest and returns the
// lower-case hex result.
func Checksum(path, algorithm string) (string, error) {
	digest, err := newDigest(algorithm)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrFileMissing, path)
		}
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(digest, f, buf); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}

// File verifies path against the expected hex digest, case-insensitively.
// The result is only meaningful when err is nil.
func File(path, expected, algorithm string) (bool, error) {
	sum, err := Checksum(path, algorithm)
	if err != nil {
		return false, err
	}

	return sum == strings.ToLower(expected), nil
}
