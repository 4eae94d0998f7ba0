// Package llm generates an optional natural-language postmortem of a run
// report. It never influences resolution; a failed summary only costs the
// summary itself.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/dkoval/paperfetch/internal/model"
	"github.com/dkoval/paperfetch/internal/report"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Summarize generates a prose postmortem of the run report
	Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// SummarizeRequest contains the input for LLM summarization
type SummarizeRequest struct {
	// Report is the run report to summarize
	Report *report.Report

	// Prompt is an optional custom prompt (if empty, use default)
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// SummarizeResponse contains the LLM's summary output
type SummarizeResponse struct {
	// Summary is the generated summary text
	Summary string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai" or "" (disabled)
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for the provider
	APIKey string

	// BaseURL for OpenAI-compatible endpoints
	BaseURL string

	// Timeout for API requests, in seconds
	Timeout int

	// MaxTokens for response generation
	MaxTokens int
}

// BuildPrompt constructs the default postmortem prompt. Only aggregates and
// failure reasons go to the provider, never downloaded content.
func BuildPrompt(r *report.Report) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, `You are summarizing a batch run of paperfetch, a tool that resolves bibliographic records to PDF files.

Run totals:
- Records processed: %d
- Resolved: %d
- Failed: %d
- Resumed from a previous run: %d

`, r.Totals.Records, r.Totals.Succeeded, r.Totals.Failed, r.Totals.Resumed)

	if len(r.Totals.ByReason) > 0 {
		sb.WriteString("Failure reasons:\n")
		for reason, count := range r.Totals.ByReason {
			fmt.Fprintf(&sb, "- %s: %d\n", describeReason(reason), count)
		}
		sb.WriteString("\n")
	}

	failures := r.Failures()
	if len(failures) > 0 {
		sb.WriteString("Failed records (signature, reason, attempts):\n")
		for i, out := range failures {
			if i >= 20 {
				fmt.Fprintf(&sb, "... and %d more\n", len(failures)-20)
				break
			}
			fmt.Fprintf(&sb, "- %s: %s after %d attempts\n", out.Signature, out.Reason, out.Attempts)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Write a 3-4 sentence summary of the run. Point out dominant failure patterns and whether retrying later is likely to help (blocked backends recover, missing papers do not). Do not invent record details.")

	return sb.String()
}

func describeReason(reason model.FailureReason) string {
	switch reason {
	case model.FailNoCandidates:
		return "no download candidates found on any backend"
	case model.FailAllDownloadsBad:
		return "every downloaded candidate failed validation"
	case model.FailAllBackendsBlocked:
		return "all backends were rate limiting or blocking"
	case model.FailDeadline:
		return "per-record time budget exhausted"
	default:
		return string(reason)
	}
}
