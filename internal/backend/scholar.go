package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/dkoval/paperfetch/internal/model"
)

// Scholar scrapes a scholarly search engine's result pages for PDF links.
type Scholar struct {
	id      string
	baseURL string
	client  httpGetter
	limiter Limiter
	robots  *RobotsChecker
	logger  zerolog.Logger
}

type httpGetter interface {
	get(ctx context.Context, rawURL string, requestNum uint64) (body string, status int, err error)
}

// clientGetter adapts a configured http.Client to the getter seam tests
// substitute.
type clientGetter struct{ client *http.Client }

func (g clientGetter) get(ctx context.Context, rawURL string, requestNum uint64) (string, int, error) {
	return get(ctx, g.client, rawURL, requestNum)
}

// NewScholar creates the scholarly-search backend.
func NewScholar(cfg model.BackendConfig, httpCfg model.HTTPConfig, limiter Limiter, logger zerolog.Logger) *Scholar {
	var robots *RobotsChecker
	if cfg.RespectRobots {
		robots = NewRobotsChecker(httpCfg.UserAgent, httpCfg.Timeout)
	}
	return &Scholar{
		id:      cfg.ID,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  clientGetter{client: newHTTPClient(httpCfg)},
		limiter: limiter,
		robots:  robots,
		logger:  logger.With().Str("backend", cfg.ID).Logger(),
	}
}

func (s *Scholar) ID() string { return s.id }

// Search tries each query tier in order and returns the first tier's
// candidates. Block-shaped responses report to the limiter and fail with
// ErrBlocked.
func (s *Scholar) Search(ctx context.Context, rec model.Record) ([]model.Candidate, error) {
	queries := queriesFor(rec)
	if len(queries) == 0 {
		return nil, fmt.Errorf("%s: %w", s.id, ErrNotFound)
	}

	for _, q := range queries {
		searchURL := fmt.Sprintf("%s/scholar?q=%s", s.baseURL, url.QueryEscape(q.value))
		if s.robots != nil && !s.robots.Allowed(ctx, searchURL) {
			s.logger.Warn().Str("url", searchURL).Msg("robots.txt disallows search path")
			return nil, fmt.Errorf("%s: robots disallow: %w", s.id, ErrNotFound)
		}

		if err := s.limiter.Acquire(ctx, s.id); err != nil {
			return nil, err
		}

		body, status, err := s.client.get(ctx, searchURL, s.limiter.Requests(s.id))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.id, err)
		}

		if serr := classifyStatus(status); serr != nil {
			if errors.Is(serr, ErrNotFound) {
				continue
			}
			if errors.Is(serr, ErrBlocked) {
				s.limiter.ReportBlocked(s.id)
			}
			return nil, fmt.Errorf("%s: status %d: %w", s.id, status, serr)
		}
		if looksBlocked(body) {
			s.limiter.ReportBlocked(s.id)
			return nil, fmt.Errorf("%s: captcha page: %w", s.id, ErrBlocked)
		}
		s.limiter.ReportOK(s.id)

		candidates := s.extractCandidates(body)
		if len(candidates) > 0 {
			s.logger.Debug().Str("tier", q.tier).Int("candidates", len(candidates)).Msg("search hit")
			return candidates, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", s.id, ErrNotFound)
}

// extractCandidates walks the result page collecting links that look like
// PDF locations, preserving page order as rank.
func (s *Scholar) extractCandidates(body string) []model.Candidate {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var candidates []model.Candidate
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attrVal(n, "href")
			if href != "" && looksLikePDFLink(href, linkText(n)) && !seen[href] {
				seen[href] = true
				candidates = append(candidates, model.Candidate{
					URL:     absoluteURL(s.baseURL, href),
					Backend: s.id,
					Rank:    len(candidates),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return candidates
}

func looksLikePDFLink(href, text string) bool {
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "#") {
		return false
	}
	if strings.HasSuffix(lower, ".pdf") || strings.Contains(lower, "/pdf/") || strings.Contains(lower, "type=pdf") {
		return true
	}
	return strings.Contains(strings.ToLower(text), "[pdf]")
}

func attrVal(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return strings.TrimSpace(attr.Val)
		}
	}
	return ""
}

func linkText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			walk(gc)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

// absoluteURL resolves href against the backend base, passing absolute and
// scheme-relative URLs through.
func absoluteURL(base, href string) string {
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	u, err := url.Parse(href)
	if err == nil && u.IsAbs() {
		return href
	}
	b, err := url.Parse(base)
	if err != nil || u == nil {
		return href
	}
	return b.ResolveReference(u).String()
}
