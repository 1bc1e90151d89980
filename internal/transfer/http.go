package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orbit-os/updaterd/internal/connectivity"
	"github.com/orbit-os/updaterd/internal/logger"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultIdleTimeout    = 90 * time.Second
	keepAlivePeriod       = 30 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second

	copyBufferSize = 32 * 1024
)

var (
	ErrNoTarget        = errors.New("no download target set")
	ErrUnexpectedState = errors.New("unexpected response status")
)

// HTTPProvider transfers the artifact with resumable range requests. Bytes
// are appended to the destination file; the file length on disk is always
// consistent with the reported progress counter.
type HTTPProvider struct {
	client *http.Client

	mu     sync.Mutex
	url    string
	body   io.ReadCloser
	file   *os.File

	progress   atomic.Int64
	terminated atomic.Bool
}

// NewHTTPProvider creates a provider with a tuned transport. Compression is
// disabled so that byte counts match the artifact size exactly.
func NewHTTPProvider() *HTTPProvider {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultConnectTimeout,
			KeepAlive: keepAlivePeriod,
		}).DialContext,
		IdleConnTimeout:     defaultIdleTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
		DisableCompression:  true,
	}

	return &HTTPProvider{
		client: &http.Client{Transport: transport},
	}
}

func (p *HTTPProvider) HasTarget() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.url != ""
}

func (p *HTTPProvider) SetTarget(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.url = url
}

// ProgressBytes returns cumulative bytes written, or ProgressTerminated once
// the stream ended without explicit success.
func (p *HTTPProvider) ProgressBytes() int64 {
	if p.terminated.Load() {
		return ProgressTerminated
	}

	return p.progress.Load()
}

func (p *HTTPProvider) Start(ctx context.Context, dest string, network connectivity.Network, offset int64) error {
	p.mu.Lock()
	url := p.url
	p.mu.Unlock()

	if url == "" {
		return ErrNoTarget
	}

	p.terminated.Store(false)
	p.progress.Store(offset)

	file, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		p.terminated.Store(true)
		return fmt.Errorf("failed to open destination file: %w", err)
	}

	// The on-disk length is the resumption checkpoint; pin it to the
	// requested offset before any bytes arrive.
	if err := file.Truncate(offset); err != nil {
		file.Close()
		p.terminated.Store(true)
		return fmt.Errorf("failed to truncate destination file: %w", err)
	}

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		file.Close()
		p.terminated.Store(true)
		return fmt.Errorf("failed to seek destination file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		file.Close()
		p.terminated.Store(true)
		return fmt.Errorf("failed to build download request: %w", err)
	}

	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		file.Close()
		p.terminated.Store(true)
		return fmt.Errorf("failed to start transfer: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusPartialContent:
	case resp.StatusCode == http.StatusOK:
		if offset > 0 {
			// Server ignored the range request: start over.
			logger.Warnf("Server ignored range request, restarting from zero")
			if err := file.Truncate(0); err != nil {
				resp.Body.Close()
				file.Close()
				p.terminated.Store(true)
				return fmt.Errorf("failed to truncate for restart: %w", err)
			}
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				resp.Body.Close()
				file.Close()
				p.terminated.Store(true)
				return fmt.Errorf("failed to seek for restart: %w", err)
			}
			p.progress.Store(0)
		}
	default:
		resp.Body.Close()
		file.Close()
		p.terminated.Store(true)
		return fmt.Errorf("%w: %d", ErrUnexpectedState, resp.StatusCode)
	}

	p.mu.Lock()
	p.body = resp.Body
	p.file = file
	p.mu.Unlock()

	if !network.IsZero() {
		logger.Debugf("Transfer started on network %s at offset %d", network.Name, offset)
	}

	err = p.copyLoop(resp.Body, file)

	p.closeStream()

	if err != nil {
		p.terminated.Store(true)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("transfer failed: %w", err)
	}

	return nil
}

func (p *HTTPProvider) copyLoop(body io.Reader, file *os.File) error {
	buf := make([]byte, copyBufferSize)

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := file.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
			p.progress.Add(int64(n))
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}
	}
}

// closeStream closes the current body and file, keeping bytes on disk.
func (p *HTTPProvider) closeStream() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.body != nil {
		p.body.Close()
		p.body = nil
	}
	if p.file != nil {
		p.file.Close()
		p.file = nil
	}
}

// Release frees the open connection and buffers. Bytes already written stay
// on disk. Idempotent.
func (p *HTTPProvider) Release() {
	p.terminated.Store(true)
	p.closeStream()
}
