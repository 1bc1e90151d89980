package transfer_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbit-os/updaterd/internal/connectivity"
	"github.com/orbit-os/updaterd/internal/transfer"
)

func createRangeServer(t *testing.T, data []byte) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := 0
		if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
			spec := strings.TrimSuffix(strings.TrimPrefix(rangeHeader, "bytes="), "-")
			n, err := strconv.Atoi(spec)
			require.NoError(t, err)
			offset = n

			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, len(data)-1, len(data)))
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)-offset))
			w.WriteHeader(http.StatusPartialContent)
		} else {
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
			w.WriteHeader(http.StatusOK)
		}

		_, err := w.Write(data[offset:])
		assert.NoError(t, err)
	}))
	t.Cleanup(server.Close)

	return server
}

func TestStartFullTransfer(t *testing.T) {
	data := []byte("full artifact payload")
	server := createRangeServer(t, data)
	dest := filepath.Join(t.TempDir(), "ota.zip")

	p := transfer.NewHTTPProvider()
	p.SetTarget(server.URL)
	assert.True(t, p.HasTarget())

	err := p.Start(context.Background(), dest, connectivity.Network{Name: "wlan0"}, 0)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(len(data)), p.ProgressBytes())
}

func TestStartResumesFromOffset(t *testing.T) {
	data := []byte("0123456789abcdef")
	server := createRangeServer(t, data)
	dest := filepath.Join(t.TempDir(), "ota.zip")

	// Partial bytes already on disk.
	require.NoError(t, os.WriteFile(dest, data[:7], 0o644))

	p := transfer.NewHTTPProvider()
	p.SetTarget(server.URL)

	err := p.Start(context.Background(), dest, connectivity.Network{}, 7)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestStartWithoutTarget(t *testing.T) {
	p := transfer.NewHTTPProvider()

	err := p.Start(context.Background(), filepath.Join(t.TempDir(), "f"), connectivity.Network{}, 0)
	assert.ErrorIs(t, err, transfer.ErrNoTarget)
}

func TestProgressSentinelAfterRelease(t *testing.T) {
	p := transfer.NewHTTPProvider()
	p.SetTarget("http://unused.invalid")

	p.Release()
	assert.Equal(t, transfer.ProgressTerminated, p.ProgressBytes())

	// Release is idempotent.
	p.Release()
	assert.Equal(t, transfer.ProgressTerminated, p.ProgressBytes())
}

func TestProgressSentinelAfterServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	p := transfer.NewHTTPProvider()
	p.SetTarget(server.URL)

	err := p.Start(context.Background(), filepath.Join(t.TempDir(), "f"), connectivity.Network{}, 0)
	require.Error(t, err)
	assert.Equal(t, transfer.ProgressTerminated, p.ProgressBytes())
}

func TestCancelAbortsTransfer(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(make([]byte, 1024))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	p := transfer.NewHTTPProvider()
	p.SetTarget(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	dest := filepath.Join(t.TempDir(), "f")

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Start(ctx, dest, connectivity.Network{}, 0)
	}()

	// Let some bytes land, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("transfer did not stop after cancel")
	}

	assert.Equal(t, transfer.ProgressTerminated, p.ProgressBytes())

	// Bytes already written stay on disk.
	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestServerIgnoringRangeRestartsFromZero(t *testing.T) {
	data := []byte("server ignores range header")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
		w.WriteHeader(http.StatusOK)
		_, err := w.Write(data)
		assert.NoError(t, err)
	}))
	t.Cleanup(server.Close)

	dest := filepath.Join(t.TempDir(), "ota.zip")
	require.NoError(t, os.WriteFile(dest, []byte("stale partial"), 0o644))

	p := transfer.NewHTTPProvider()
	p.SetTarget(server.URL)

	err := p.Start(context.Background(), dest, connectivity.Network{}, 13)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
