package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/dkoval/paperfetch/internal/model"
)

// Mirror resolves DOIs against a Sci-Hub-style mirror: the article page at
// <base>/<doi> embeds the PDF in an iframe or embed element. Only the
// identifier query tier applies; DOI-less records are NotFound here.
type Mirror struct {
	id      string
	baseURL string
	client  httpGetter
	limiter Limiter
	logger  zerolog.Logger
}

// NewMirror creates the mirror fallback backend.
func NewMirror(cfg model.BackendConfig, httpCfg model.HTTPConfig, limiter Limiter, logger zerolog.Logger) *Mirror {
	return &Mirror{
		id:      cfg.ID,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  clientGetter{client: newHTTPClient(httpCfg)},
		limiter: limiter,
		logger:  logger.With().Str("backend", cfg.ID).Logger(),
	}
}

func (m *Mirror) ID() string { return m.id }

// Search fetches the article page for the record's DOI and extracts the
// embedded PDF URL.
func (m *Mirror) Search(ctx context.Context, rec model.Record) ([]model.Candidate, error) {
	doi := model.NormalizeDOI(rec.DOI)
	if doi == "" {
		return nil, fmt.Errorf("%s: record has no DOI: %w", m.id, ErrNotFound)
	}

	if err := m.limiter.Acquire(ctx, m.id); err != nil {
		return nil, err
	}

	pageURL := m.baseURL + "/" + doi
	body, status, err := m.client.get(ctx, pageURL, m.limiter.Requests(m.id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.id, err)
	}

	if serr := classifyStatus(status); serr != nil {
		if errors.Is(serr, ErrBlocked) {
			m.limiter.ReportBlocked(m.id)
		}
		if errors.Is(serr, ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", m.id, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: status %d: %w", m.id, status, serr)
	}
	if looksBlocked(body) {
		m.limiter.ReportBlocked(m.id)
		return nil, fmt.Errorf("%s: captcha page: %w", m.id, ErrBlocked)
	}
	m.limiter.ReportOK(m.id)

	candidates := m.extractEmbeds(body)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%s: no embedded document: %w", m.id, ErrNotFound)
	}
	m.logger.Debug().Str("doi", doi).Int("candidates", len(candidates)).Msg("mirror hit")
	return candidates, nil
}

// extractEmbeds collects iframe/embed sources and download buttons from the
// article page, in document order.
func (m *Mirror) extractEmbeds(body string) []model.Candidate {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var candidates []model.Candidate
	seen := make(map[string]bool)
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		// Strip viewer fragments like #navpanes=0.
		if idx := strings.IndexByte(raw, '#'); idx >= 0 {
			raw = raw[:idx]
		}
		if raw == "" || seen[raw] {
			return
		}
		seen[raw] = true
		candidates = append(candidates, model.Candidate{
			URL:     absoluteURL(m.baseURL, raw),
			Backend: m.id,
			Rank:    len(candidates),
		})
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "iframe", "embed":
				if src := attrVal(n, "src"); src != "" {
					add(src)
				}
			case "button":
				// onclick="location.href='//mirror/downloads/x.pdf'"
				if onclick := attrVal(n, "onclick"); onclick != "" {
					if u := extractHrefFromOnclick(onclick); u != "" {
						add(u)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return candidates
}

func extractHrefFromOnclick(onclick string) string {
	const marker = "location.href='"
	idx := strings.Index(onclick, marker)
	if idx < 0 {
		return ""
	}
	rest := onclick[idx+len(marker):]
	end := strings.IndexByte(rest, '\'')
	if end < 0 {
		return ""
	}
	return rest[:end]
}
