package build_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbit-os/updaterd/internal/build"
)

func manifestServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, err := w.Write([]byte(body))
		assert.NoError(t, err)
	}))
	t.Cleanup(server.Close)

	return server
}

func TestFetchNewBuild(t *testing.T) {
	body := `{
		"file_name": "ota.zip",
		"file_size": 1000,
		"md5sum": "ABC123DEF456",
		"url": "https://mirror.example/ota.zip",
		"version": "2.1",
		"date": "2021-09-01"
	}`
	server := manifestServer(t, body, http.StatusOK)

	p := build.NewHTTPProvider(server.URL, "2.0", "2021-08-01")

	desc, err := p.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ota.zip", desc.FileName)
	assert.Equal(t, int64(1000), desc.FileSize)
	assert.Equal(t, "abc123def456", desc.Checksum, "checksum normalized to lower case")
	assert.Equal(t, "2.1", desc.Version)
	assert.NotEmpty(t, desc.ID)
}

func TestFetchNoUpdateWhenVersionMatches(t *testing.T) {
	body := `{
		"file_name": "ota.zip",
		"file_size": 1000,
		"md5sum": "abc123",
		"version": "2.0",
		"date": "2021-08-01"
	}`
	server := manifestServer(t, body, http.StatusOK)

	p := build.NewHTTPProvider(server.URL, "2.0", "2021-08-01")

	_, err := p.Fetch(context.Background())
	assert.ErrorIs(t, err, build.ErrNoUpdate)
}

func TestFetchServerError(t *testing.T) {
	server := manifestServer(t, "", http.StatusInternalServerError)

	p := build.NewHTTPProvider(server.URL, "2.0", "2021-08-01")

	_, err := p.Fetch(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, build.ErrNoUpdate)
}

func TestFetchMalformedManifest(t *testing.T) {
	server := manifestServer(t, "{not json", http.StatusOK)

	p := build.NewHTTPProvider(server.URL, "2.0", "2021-08-01")

	_, err := p.Fetch(context.Background())
	assert.Error(t, err)
}

func TestFetchMissingFields(t *testing.T) {
	server := manifestServer(t, `{"version": "3.0"}`, http.StatusOK)

	p := build.NewHTTPProvider(server.URL, "2.0", "2021-08-01")

	_, err := p.Fetch(context.Background())
	assert.Error(t, err)
}
