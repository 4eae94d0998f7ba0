package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoval/paperfetch/internal/model"
)

func newTestDownloader(t *testing.T, cfg model.DownloadConfig) *Downloader {
	t.Helper()
	return New(cfg, model.HTTPConfig{UserAgent: "test"}, t.TempDir(), zerolog.Nop())
}

func TestFetch_StreamsAndHashes(t *testing.T) {
	payload := "%PDF-1.7\n" + strings.Repeat("x", 10_000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, payload)
	}))
	defer srv.Close()

	d := newTestDownloader(t, model.DownloadConfig{
		Timeout:    5 * time.Second,
		MaxBytes:   1 << 20,
		ChunkBytes: 512,
	})
	res, err := d.Fetch(context.Background(), srv.URL+"/paper.pdf")
	require.NoError(t, err)
	defer os.Remove(res.Path)

	assert.Equal(t, int64(len(payload)), res.ByteSize)
	assert.Equal(t, "application/pdf", res.ContentType)

	sum := sha256.Sum256([]byte(payload))
	assert.Equal(t, hex.EncodeToString(sum[:]), res.SHA256)

	got, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
}

func TestFetch_TooLargeMidStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No Content-Length, so the cap only trips mid-stream.
		w.Header().Set("Transfer-Encoding", "chunked")
		for i := 0; i < 100; i++ {
			fmt.Fprint(w, strings.Repeat("y", 1024))
			w.(http.Flusher).Flush()
		}
	}))
	defer srv.Close()

	tmpDir := t.TempDir()
	d := New(model.DownloadConfig{Timeout: 5 * time.Second, MaxBytes: 4096, ChunkBytes: 1024},
		model.HTTPConfig{}, tmpDir, zerolog.Nop())

	_, err := d.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTooLarge)

	// Partial file cleaned up.
	parts, err := filepath.Glob(filepath.Join(tmpDir, "*.part"))
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestFetch_TooLargeByContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "99999999")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDownloader(t, model.DownloadConfig{MaxBytes: 1024})
	_, err := d.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFetch_StallTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "first chunk")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	d := newTestDownloader(t, model.DownloadConfig{
		Timeout:      10 * time.Second,
		StallTimeout: 100 * time.Millisecond,
		MaxBytes:     1 << 20,
	})
	start := time.Now()
	_, err := d.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFetch_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	d := newTestDownloader(t, model.DownloadConfig{})
	_, err := d.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrBadStatus)
}

func TestFetch_RedirectLimit(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	d := newTestDownloader(t, model.DownloadConfig{MaxRedirects: 3})
	_, err := d.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestFetch_ConnectionRefused(t *testing.T) {
	d := newTestDownloader(t, model.DownloadConfig{Timeout: time.Second})
	_, err := d.Fetch(context.Background(), "http://127.0.0.1:1/none.pdf")
	assert.ErrorIs(t, err, ErrNetwork)
}
