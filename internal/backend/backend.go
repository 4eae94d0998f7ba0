// Package backend implements the search backends that resolve a
// bibliographic record to candidate PDF URLs.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dkoval/paperfetch/internal/model"
)

// Classification sentinels for search failures. Callers use errors.Is.
var (
	// ErrNotFound means the backend has no candidates for this record.
	// Terminal for this backend only.
	ErrNotFound = errors.New("no candidates")

	// ErrBlocked means the backend signalled blocking (429, CAPTCHA).
	// Retryable after the limiter's backoff cooldown.
	ErrBlocked = errors.New("blocked by source")

	// ErrTransient covers timeouts and 5xx responses. Retryable up to the
	// backend's configured retry budget.
	ErrTransient = errors.New("transient error")
)

// Searcher resolves one record to an ordered list of candidate URLs.
type Searcher interface {
	ID() string
	Search(ctx context.Context, rec model.Record) ([]model.Candidate, error)
}

// Limiter is the throttle capability every backend acquires before any
// network call and reports outcomes to.
type Limiter interface {
	Acquire(ctx context.Context, id string) error
	ReportBlocked(id string)
	ReportOK(id string)
	Requests(id string) uint64
}

// query is one search attempt at a given looseness tier.
type query struct {
	tier  string
	value string
}

const (
	tierIdentifier  = "identifier"
	tierTitleAuthor = "title_author"
	tierTitle       = "title"
)

// queriesFor builds the fixed loosening sequence for a record: exact
// identifier, then title plus first author, then title alone. Backends stop
// at the first tier that yields candidates.
func queriesFor(rec model.Record) []query {
	var qs []query
	if doi := model.NormalizeDOI(rec.DOI); doi != "" {
		qs = append(qs, query{tier: tierIdentifier, value: doi})
	}
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		return qs
	}
	if author := rec.FirstAuthor(); author != "" {
		qs = append(qs, query{tier: tierTitleAuthor, value: fmt.Sprintf("%q %s", title, author)})
	}
	qs = append(qs, query{tier: tierTitle, value: fmt.Sprintf("%q", title)})
	return qs
}

// blockMarkers are body substrings that indicate a CAPTCHA or bot wall
// rather than an ordinary empty result.
var blockMarkers = []string{
	"captcha",
	"unusual traffic",
	"are you a robot",
	"access denied",
}

func looksBlocked(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// classifyStatus maps an HTTP status to the error taxonomy. 2xx maps to nil.
func classifyStatus(status int) error {
	switch {
	case status == 429 || status == 403:
		return ErrBlocked
	case status >= 500:
		return ErrTransient
	case status >= 200 && status < 300:
		return nil
	case status == 404:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrTransient, status)
	}
}
