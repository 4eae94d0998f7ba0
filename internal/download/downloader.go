package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkoval/paperfetch/internal/metrics"
	"github.com/dkoval/paperfetch/internal/model"
	"github.com/dkoval/paperfetch/internal/util"
)

var (
	// ErrTooLarge means the body exceeded the configured size cap mid-stream.
	ErrTooLarge = errors.New("download: response too large")
	// ErrTimeout covers both the wall-clock cap and a stalled stream.
	ErrTimeout = errors.New("download: timed out")
	// ErrNetwork covers connection failures, redirect loops and TLS errors.
	ErrNetwork = errors.New("download: network failure")
	// ErrBadStatus means the server answered with a non-2xx status.
	ErrBadStatus = errors.New("download: unexpected status")
)

// Result describes a completed download. Path points at a temporary file the
// caller owns: promote it into storage or remove it.
type Result struct {
	Path        string
	ByteSize    int64
	SHA256      string
	FinalURL    string
	ContentType string
	Elapsed     time.Duration
}

// Downloader streams candidate URLs to temporary files with size, stall and
// wall-clock limits. It tracks a SHA-256 digest while streaming so callers
// never re-read the file to hash it.
type Downloader struct {
	client *http.Client
	cfg    model.DownloadConfig
	tmpDir string
	agent  string
	logger zerolog.Logger
}

// New creates a Downloader that writes temporaries under tmpDir.
func New(cfg model.DownloadConfig, httpCfg model.HTTPConfig, tmpDir string, logger zerolog.Logger) *Downloader {
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 5
	}
	return &Downloader{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(httpCfg.HTTPProxy, httpCfg.HTTPSProxy, httpCfg.NoProxy),
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects: %w", maxRedirects, ErrNetwork)
				}
				return nil
			},
		},
		cfg:    cfg,
		tmpDir: tmpDir,
		agent:  httpCfg.UserAgent,
		logger: logger.With().Str("component", "download").Logger(),
	}
}

// Fetch streams rawURL to a temporary file. On any error the partial file is
// removed before returning.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	start := time.Now()

	if d.cfg.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer timeoutCancel()
	}
	// The stall watchdog cancels this context to abort a hung body read.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.agent)
	req.Header.Set("Accept", "application/pdf,application/octet-stream;q=0.9,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, d.classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, ErrBadStatus)
	}
	if d.cfg.MaxBytes > 0 && resp.ContentLength > d.cfg.MaxBytes {
		return nil, fmt.Errorf("content-length %d exceeds %d: %w",
			resp.ContentLength, d.cfg.MaxBytes, ErrTooLarge)
	}

	tmp, err := os.CreateTemp(d.tmpDir, "paperfetch-*.part")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	var (
		written int64
		digest  string
	)
	written, digest, err = d.stream(ctx, cancel, resp.Body, tmp)
	if err != nil {
		return nil, err
	}
	if err = tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	metrics.AddDownloadedBytes(written)
	result := &Result{
		Path:        tmp.Name(),
		ByteSize:    written,
		SHA256:      digest,
		FinalURL:    resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		Elapsed:     time.Since(start),
	}
	d.logger.Debug().
		Str("url", rawURL).
		Int64("bytes", written).
		Dur("elapsed", result.Elapsed).
		Msg("downloaded")
	return result, nil
}

// stream copies body to w in chunks, hashing as it goes. A stall watchdog
// cancels the request when no chunk arrives within StallTimeout.
func (d *Downloader) stream(ctx context.Context, cancel context.CancelFunc, body io.Reader, w io.Writer) (int64, string, error) {
	var stall *time.Timer
	if d.cfg.StallTimeout > 0 {
		stall = time.AfterFunc(d.cfg.StallTimeout, cancel)
		defer stall.Stop()
	}

	chunk := d.cfg.ChunkBytes
	if chunk <= 0 {
		chunk = 64 * 1024
	}
	buf := make([]byte, chunk)
	hasher := sha256.New()
	out := io.MultiWriter(w, hasher)

	var written int64
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if stall != nil {
				stall.Reset(d.cfg.StallTimeout)
			}
			written += int64(n)
			if d.cfg.MaxBytes > 0 && written > d.cfg.MaxBytes {
				return written, "", fmt.Errorf("exceeded %d bytes: %w", d.cfg.MaxBytes, ErrTooLarge)
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				return written, "", fmt.Errorf("write temp file: %w", werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return written, "", fmt.Errorf("after %d bytes: %w", written, ErrTimeout)
			}
			return written, "", fmt.Errorf("read body: %w: %v", ErrNetwork, rerr)
		}
	}

	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}

func (d *Downloader) classify(err error) error {
	if errors.Is(err, ErrNetwork) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
