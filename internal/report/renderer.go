package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Renderer writes run reports to files and the terminal.
type Renderer struct {
	out io.Writer
}

// NewRenderer creates a renderer printing its summary to out.
func NewRenderer(out io.Writer) *Renderer {
	if out == nil {
		out = os.Stdout
	}
	return &Renderer{out: out}
}

// RenderJSON writes the full report as indented JSON.
func (r *Renderer) RenderJSON(report *Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// RenderMarkdown writes a human-readable run report.
func (r *Renderer) RenderMarkdown(report *Report, path string) error {
	var sb strings.Builder

	sb.WriteString("# paperfetch run report\n\n")
	fmt.Fprintf(&sb, "- Run: `%s`\n", report.RunID)
	fmt.Fprintf(&sb, "- Started: %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "- Finished: %s\n\n", report.FinishedAt.Format("2006-01-02 15:04:05 MST"))

	fmt.Fprintf(&sb, "## Totals\n\n")
	fmt.Fprintf(&sb, "| Records | Succeeded | Failed | Resumed |\n")
	fmt.Fprintf(&sb, "|---------|-----------|--------|----------|\n")
	fmt.Fprintf(&sb, "| %d | %d | %d | %d |\n\n",
		report.Totals.Records, report.Totals.Succeeded, report.Totals.Failed, report.Totals.Resumed)

	if len(report.Totals.ByReason) > 0 {
		sb.WriteString("## Failure reasons\n\n")
		for reason, count := range report.Totals.ByReason {
			fmt.Fprintf(&sb, "- %s: %d\n", reason, count)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Outcomes\n\n")
	for _, out := range report.Outcomes {
		if out.Succeeded {
			path := ""
			if out.Artifact != nil {
				path = out.Artifact.Path
			}
			fmt.Fprintf(&sb, "- ✓ `%s` via %s → %s\n", out.Signature, out.Backend, path)
		} else {
			fmt.Fprintf(&sb, "- ✗ `%s` (%s, %d attempts)\n", out.Signature, out.Reason, out.Attempts)
		}
	}

	if len(report.Warnings) > 0 {
		sb.WriteString("\n## Input warnings\n\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
	}

	if report.LLMSummary != "" {
		sb.WriteString("\n## Summary\n\n")
		sb.WriteString(report.LLMSummary)
		sb.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}
	return nil
}

// RenderSummary prints the headline numbers to the terminal.
func (r *Renderer) RenderSummary(report *Report) {
	fmt.Fprintf(r.out, "\nResolved %d/%d records", report.Totals.Succeeded, report.Totals.Records)
	if report.Totals.Resumed > 0 {
		fmt.Fprintf(r.out, " (%d resumed from a previous run)", report.Totals.Resumed)
	}
	fmt.Fprintln(r.out)

	if report.Totals.Failed > 0 {
		fmt.Fprintf(r.out, "Failed: %d\n", report.Totals.Failed)
		for reason, count := range report.Totals.ByReason {
			fmt.Fprintf(r.out, "  %s: %d\n", reason, count)
		}
	}
}
