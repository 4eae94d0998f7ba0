// Package report aggregates a run's outcomes into JSON and Markdown
// artifacts plus a terminal summary.
package report

import (
	"sort"
	"time"

	"github.com/dkoval/paperfetch/internal/model"
)

// Report is the end-of-run account of what was resolved and what was not.
type Report struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Totals     Totals          `json:"totals"`
	Outcomes   []model.Outcome `json:"outcomes"`
	Warnings   []string        `json:"warnings,omitempty"`
	LLMSummary string          `json:"llm_summary,omitempty"`
}

// Totals are the headline counters for the run.
type Totals struct {
	Records   int                         `json:"records"`
	Succeeded int                         `json:"succeeded"`
	Failed    int                         `json:"failed"`
	Resumed   int                         `json:"resumed"`
	ByReason  map[model.FailureReason]int `json:"by_reason,omitempty"`
}

// Build assembles a report from the run's outcomes. Outcomes are sorted by
// signature so reports diff cleanly between runs.
func Build(runID string, startedAt time.Time, outcomes []model.Outcome, warnings []string) *Report {
	totals := Totals{
		Records:  len(outcomes),
		ByReason: make(map[model.FailureReason]int),
	}
	for _, out := range outcomes {
		if out.Succeeded {
			totals.Succeeded++
		} else {
			totals.Failed++
			if out.Reason != "" {
				totals.ByReason[out.Reason]++
			}
		}
		if out.Resumed {
			totals.Resumed++
		}
	}
	if len(totals.ByReason) == 0 {
		totals.ByReason = nil
	}

	sorted := make([]model.Outcome, len(outcomes))
	copy(sorted, outcomes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Signature < sorted[j].Signature })

	return &Report{
		RunID:      runID,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		Totals:     totals,
		Outcomes:   sorted,
		Warnings:   warnings,
	}
}

// Failures returns the failed outcomes, for the optional LLM postmortem.
func (r *Report) Failures() []model.Outcome {
	var failed []model.Outcome
	for _, out := range r.Outcomes {
		if !out.Succeeded {
			failed = append(failed, out)
		}
	}
	return failed
}
