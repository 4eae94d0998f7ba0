package llm

import (
	"context"
	"fmt"

	"github.com/dkoval/paperfetch/internal/report"
)

// Summarizer attaches an LLM postmortem to a run report.
type Summarizer struct {
	provider Provider
	config   Config
}

// NewSummarizer creates a summarizer, or an inert one when no provider is
// configured.
func NewSummarizer(config Config) (*Summarizer, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}
	return &Summarizer{provider: provider, config: config}, nil
}

// IsEnabled reports whether a provider is configured.
func (s *Summarizer) IsEnabled() bool {
	return s != nil && s.provider != nil
}

// Summarize fills in the report's LLMSummary field. Errors leave the report
// untouched so the run result never depends on the provider.
func (s *Summarizer) Summarize(ctx context.Context, r *report.Report) error {
	if !s.IsEnabled() {
		return nil
	}

	resp, err := s.provider.Summarize(ctx, SummarizeRequest{
		Report:    r,
		Model:     s.config.Model,
		MaxTokens: s.config.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("generating run summary: %w", err)
	}

	r.LLMSummary = resp.Summary
	return nil
}
