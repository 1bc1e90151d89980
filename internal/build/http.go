package build

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orbit-os/updaterd/internal/logger"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultIdleTimeout    = 90 * time.Second
	keepAlivePeriod       = 30 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second

	fetchTimeout = 30 * time.Second
)

// manifest is the JSON document published alongside each build.
type manifest struct {
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	MD5Sum   string `json:"md5sum"`
	URL      string `json:"url"`
	Version  string `json:"version"`
	Date     string `json:"date"`
}

// HTTPProvider fetches the build manifest from a fixed URL and compares the
// advertised version against the running build.
type HTTPProvider struct {
	client *http.Client

	manifestURL    string
	currentVersion string
	currentDate    string
}

// NewHTTPProvider creates a provider for the given manifest URL. The current
// version and date identify the running build; a manifest matching both is
// reported as ErrNoUpdate.
func NewHTTPProvider(manifestURL, currentVersion, currentDate string) *HTTPProvider {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultConnectTimeout,
			KeepAlive: keepAlivePeriod,
		}).DialContext,
		IdleConnTimeout:     defaultIdleTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
	}

	return &HTTPProvider{
		client: &http.Client{
			Transport: transport,
			Timeout:   fetchTimeout,
		},
		manifestURL:    manifestURL,
		currentVersion: currentVersion,
		currentDate:    currentDate,
	}
}

func (p *HTTPProvider) Fetch(ctx context.Context) (*Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.manifestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build manifest request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warnf("Failed to close manifest response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest fetch returned status %d", resp.StatusCode)
	}

	var m manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	if m.FileName == "" || m.FileSize < 0 || m.MD5Sum == "" {
		return nil, fmt.Errorf("manifest is missing required fields")
	}

	if m.Version == p.currentVersion && m.Date == p.currentDate {
		return nil, ErrNoUpdate
	}

	desc := &Descriptor{
		ID:       uuid.New(),
		FileName: m.FileName,
		FileSize: m.FileSize,
		Checksum: strings.ToLower(m.MD5Sum),
		URL:      m.URL,
		Version:  m.Version,
		Date:     m.Date,
		Metadata: map[string]string{
			"version": m.Version,
			"date":    m.Date,
		},
	}

	logger.Infof("Fetched build manifest: cycle=%s version=%s size=%d", desc.ID, desc.Version, desc.FileSize)

	return desc, nil
}
