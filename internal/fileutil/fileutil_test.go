package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbit-os/updaterd/internal/fileutil"
)

func TestDeleteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.zip")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	require.NoError(t, fileutil.Delete(path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteMissingFileIsNoop(t *testing.T) {
	assert.NoError(t, fileutil.Delete(filepath.Join(t.TempDir(), "absent")))
}

func TestDeleteRefusesDirectory(t *testing.T) {
	dir := t.TempDir()

	err := fileutil.Delete(dir)
	assert.ErrorIs(t, err, fileutil.ErrIsDirectory)

	_, statErr := os.Stat(dir)
	assert.NoError(t, statErr)
}

func TestCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.zip")
	dst := filepath.Join(dir, "exported", "dst.zip")

	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))
	require.NoError(t, fileutil.Copy(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.zip")
	require.NoError(t, os.WriteFile(path, make([]byte, 123), 0o644))

	size, err := fileutil.Size(path)
	require.NoError(t, err)
	assert.Equal(t, int64(123), size)

	size, err = fileutil.Size(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}
