package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dkoval/paperfetch/internal/model"
)

// OpenAlex queries the OpenAlex works API for open-access PDF locations.
// DOI lookups hit /works/https://doi.org/<doi>; title tiers use the search
// endpoint.
type OpenAlex struct {
	id      string
	baseURL string
	mailto  string
	client  httpGetter
	limiter Limiter
	logger  zerolog.Logger
}

// NewOpenAlex creates the OpenAlex API backend.
func NewOpenAlex(cfg model.BackendConfig, httpCfg model.HTTPConfig, limiter Limiter, logger zerolog.Logger) *OpenAlex {
	return &OpenAlex{
		id:      cfg.ID,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		mailto:  httpCfg.UserAgent,
		client:  clientGetter{client: newHTTPClient(httpCfg)},
		limiter: limiter,
		logger:  logger.With().Str("backend", cfg.ID).Logger(),
	}
}

func (o *OpenAlex) ID() string { return o.id }

type oaLocation struct {
	PDFURL     string `json:"pdf_url"`
	LandingURL string `json:"landing_page_url"`
}

type oaWork struct {
	DOI             string      `json:"doi"`
	Title           string      `json:"title"`
	BestOALocation  *oaLocation `json:"best_oa_location"`
	PrimaryLocation *oaLocation `json:"primary_location"`
}

type oaSearchResponse struct {
	Results []oaWork `json:"results"`
}

// Search resolves the record via DOI lookup first, then title search.
func (o *OpenAlex) Search(ctx context.Context, rec model.Record) ([]model.Candidate, error) {
	if doi := model.NormalizeDOI(rec.DOI); doi != "" {
		candidates, err := o.byDOI(ctx, doi)
		if err == nil || !errors.Is(err, ErrNotFound) {
			return candidates, err
		}
	}
	if strings.TrimSpace(rec.Title) != "" {
		return o.byTitle(ctx, rec.Title)
	}
	return nil, fmt.Errorf("%s: %w", o.id, ErrNotFound)
}

func (o *OpenAlex) byDOI(ctx context.Context, doi string) ([]model.Candidate, error) {
	reqURL := fmt.Sprintf("%s/works/https://doi.org/%s?mailto=%s", o.baseURL, doi, url.QueryEscape(o.mailto))
	var work oaWork
	if err := o.getJSON(ctx, reqURL, &work); err != nil {
		return nil, err
	}
	candidates := o.workCandidates(work, nil)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%s: no open-access location: %w", o.id, ErrNotFound)
	}
	return candidates, nil
}

func (o *OpenAlex) byTitle(ctx context.Context, title string) ([]model.Candidate, error) {
	reqURL := fmt.Sprintf("%s/works?search=%s&per-page=5&mailto=%s",
		o.baseURL, url.QueryEscape(title), url.QueryEscape(o.mailto))
	var resp oaSearchResponse
	if err := o.getJSON(ctx, reqURL, &resp); err != nil {
		return nil, err
	}

	var candidates []model.Candidate
	for _, work := range resp.Results {
		candidates = o.workCandidates(work, candidates)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%s: %w", o.id, ErrNotFound)
	}
	return candidates, nil
}

func (o *OpenAlex) workCandidates(work oaWork, acc []model.Candidate) []model.Candidate {
	for _, loc := range []*oaLocation{work.BestOALocation, work.PrimaryLocation} {
		if loc == nil || loc.PDFURL == "" {
			continue
		}
		dup := false
		for _, c := range acc {
			if c.URL == loc.PDFURL {
				dup = true
				break
			}
		}
		if !dup {
			acc = append(acc, model.Candidate{URL: loc.PDFURL, Backend: o.id, Rank: len(acc)})
		}
	}
	return acc
}

func (o *OpenAlex) getJSON(ctx context.Context, reqURL string, out any) error {
	if err := o.limiter.Acquire(ctx, o.id); err != nil {
		return err
	}

	body, status, err := o.client.get(ctx, reqURL, o.limiter.Requests(o.id))
	if err != nil {
		return fmt.Errorf("%s: %w", o.id, err)
	}
	if serr := classifyStatus(status); serr != nil {
		if errors.Is(serr, ErrBlocked) {
			o.limiter.ReportBlocked(o.id)
			return fmt.Errorf("%s: status %d: %w", o.id, status, ErrBlocked)
		}
		if errors.Is(serr, ErrNotFound) {
			return fmt.Errorf("%s: %w", o.id, ErrNotFound)
		}
		return fmt.Errorf("%s: status %d: %w", o.id, status, serr)
	}
	o.limiter.ReportOK(o.id)

	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("%s: parse response: %w", o.id, ErrTransient)
	}
	return nil
}
