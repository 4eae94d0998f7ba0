package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Record is one validated bibliographic entry to resolve.
// Invariant: DOI or Title is non-empty (enforced at the input boundary).
type Record struct {
	DOI     string   `json:"doi,omitempty"`
	Title   string   `json:"title"`
	Authors []string `json:"authors,omitempty"`
	Year    int      `json:"year,omitempty"`
}

// NormalizeDOI strips resolver prefixes and scheme noise from a DOI and
// lower-cases it. Returns "" for input that is clearly not a DOI.
func NormalizeDOI(raw string) string {
	doi := strings.TrimSpace(raw)
	doi = strings.TrimPrefix(doi, "doi:")
	doi = strings.TrimPrefix(doi, "DOI:")
	for _, prefix := range []string{
		"https://doi.org/",
		"http://doi.org/",
		"https://dx.doi.org/",
		"http://dx.doi.org/",
		"doi.org/",
		"dx.doi.org/",
	} {
		if strings.HasPrefix(strings.ToLower(doi), prefix) {
			doi = doi[len(prefix):]
			break
		}
	}
	doi = strings.TrimSpace(strings.ToLower(doi))
	if !strings.HasPrefix(doi, "10.") {
		return ""
	}
	return doi
}

// FirstAuthor returns the first author or "".
func (r Record) FirstAuthor() string {
	if len(r.Authors) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Authors[0])
}

// Signature derives the cache/dedup key for the record: the normalized DOI
// when present, otherwise a hash of (title, first author). Two records with
// the same signature are the same search problem.
func (r Record) Signature() string {
	if doi := NormalizeDOI(r.DOI); doi != "" {
		return doi
	}
	h := sha256.New()
	h.Write([]byte(normalizeForHash(r.Title)))
	h.Write([]byte{0})
	h.Write([]byte(normalizeForHash(r.FirstAuthor())))
	return "t:" + hex.EncodeToString(h.Sum(nil))[:24]
}

// Slug returns a filesystem-safe stem for the record's output files.
func (r Record) Slug() string {
	if doi := NormalizeDOI(r.DOI); doi != "" {
		return strings.NewReplacer("/", "-", ":", "-", " ", "-").Replace(doi)
	}
	return r.Signature()
}

func normalizeForHash(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Candidate is a URL proposed by a backend as a possible PDF location.
// Rank is the position within that backend's response.
type Candidate struct {
	URL     string `json:"url"`
	Backend string `json:"backend"`
	Rank    int    `json:"rank"`
}

// AttemptOutcome classifies one resolution try.
type AttemptOutcome string

const (
	AttemptSuccess          AttemptOutcome = "success"
	AttemptRetryableFailure AttemptOutcome = "retryable_failure"
	AttemptTerminalFailure  AttemptOutcome = "terminal_failure"
)

// Attempt is one (record, backend, candidate) resolution try. Attempts are
// append-only and form the audit trail for the run report.
type Attempt struct {
	Signature string         `json:"signature"`
	Backend   string         `json:"backend"`
	URL       string         `json:"url,omitempty"`
	Outcome   AttemptOutcome `json:"outcome"`
	Reason    string         `json:"reason,omitempty"`
	At        time.Time      `json:"at"`
}

// Artifact is a validated, stored PDF plus its provenance. An Artifact
// exists on disk only after passing validation.
type Artifact struct {
	Path          string    `json:"path" yaml:"path"`
	SHA256        string    `json:"sha256" yaml:"sha256"`
	ByteSize      int64     `json:"byte_size" yaml:"byte_size"`
	SourceBackend string    `json:"source_backend" yaml:"source_backend"`
	FinalURL      string    `json:"final_url" yaml:"final_url"`
	DOI           string    `json:"doi,omitempty" yaml:"doi,omitempty"`
	Title         string    `json:"title,omitempty" yaml:"title,omitempty"`
	FetchedAt     time.Time `json:"fetched_at" yaml:"fetched_at"`
}

// FailureReason is the terminal reason for a failed record.
type FailureReason string

const (
	FailNoCandidates       FailureReason = "no_candidates_found"
	FailAllDownloadsBad    FailureReason = "all_downloads_invalid"
	FailAllBackendsBlocked FailureReason = "all_backends_blocked"
	FailDeadline           FailureReason = "deadline_exceeded"
)

// Outcome is the terminal state of one record.
type Outcome struct {
	Signature string        `json:"signature"`
	Succeeded bool          `json:"succeeded"`
	Backend   string        `json:"backend,omitempty"`
	Reason    FailureReason `json:"reason,omitempty"`
	Artifact  *Artifact     `json:"artifact,omitempty"`
	Attempts  int           `json:"attempts"`
	Resumed   bool          `json:"resumed,omitempty"`
}
