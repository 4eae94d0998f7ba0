package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dkoval/paperfetch/internal/model"
	"github.com/dkoval/paperfetch/internal/util"
)

const maxResponseBytes = 2 << 20

// sessionRotateEvery is the request-counter threshold at which a backend
// rotates its client identity.
const sessionRotateEvery = 50

var userAgents = []string{
	"Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
}

// newHTTPClient builds the shared backend HTTP client: bounded redirects,
// request timeout, optional proxy.
func newHTTPClient(cfg model.HTTPConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after 5 redirects")
			}
			return nil
		},
	}
}

// get fetches a page body for a backend. The user agent rotates when the
// limiter's request counter crosses the session threshold; requestNum is
// that counter's value for this call.
func get(ctx context.Context, client *http.Client, rawURL string, requestNum uint64) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}

	session := requestNum / sessionRotateEvery
	req.Header.Set("User-Agent", userAgents[int(session)%len(userAgents)])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}
	return string(body), resp.StatusCode, nil
}
