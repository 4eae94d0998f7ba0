package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoval/paperfetch/internal/model"
)

const scholarResultsPage = `<html><body>
<div class="result">
  <h3><a href="https://journal.example.org/article/123">A Paper</a></h3>
  <a href="https://repo.example.org/files/paper.pdf">[PDF] repo.example.org</a>
</div>
<div class="result">
  <a href="/local/pdf/456.pdf">cached copy</a>
</div>
</body></html>`

func newTestScholar(t *testing.T, handler http.HandlerFunc) (*Scholar, *stubLimiter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	limiter := &stubLimiter{}
	s := NewScholar(model.BackendConfig{ID: "scholar", BaseURL: srv.URL},
		model.HTTPConfig{UserAgent: "test"}, limiter, zerolog.Nop())
	return s, limiter
}

func TestScholarSearch_ExtractsRankedCandidates(t *testing.T) {
	s, limiter := newTestScholar(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, scholarResultsPage)
	})

	cands, err := s.Search(context.Background(), model.Record{DOI: "10.1038/nature12345", Title: "A Paper"})
	require.NoError(t, err)
	require.Len(t, cands, 2)

	assert.Equal(t, "https://repo.example.org/files/paper.pdf", cands[0].URL)
	assert.Equal(t, 0, cands[0].Rank)
	assert.Equal(t, "scholar", cands[0].Backend)
	assert.True(t, strings.HasSuffix(cands[1].URL, "/local/pdf/456.pdf"))
	assert.Equal(t, 1, cands[1].Rank)

	// One tier sufficed and the outcome was reported OK.
	assert.Equal(t, []string{"scholar"}, limiter.acquired)
	assert.Equal(t, []string{"scholar"}, limiter.ok)
}

func TestScholarSearch_LoosensQueriesThenNotFound(t *testing.T) {
	var queries []string
	s, limiter := newTestScholar(t, func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("q"))
		fmt.Fprint(w, "<html><body>No results.</body></html>")
	})

	_, err := s.Search(context.Background(), model.Record{
		DOI: "10.1000/xyz", Title: "T", Authors: []string{"A"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	// All three tiers were attempted, each gated by the limiter.
	require.Len(t, queries, 3)
	assert.Equal(t, "10.1000/xyz", queries[0])
	assert.Len(t, limiter.acquired, 3)
	assert.Empty(t, limiter.blocked)
}

func TestScholarSearch_CaptchaReportsBlocked(t *testing.T) {
	s, limiter := newTestScholar(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>Please complete the CAPTCHA</html>")
	})

	_, err := s.Search(context.Background(), model.Record{Title: "T"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Equal(t, []string{"scholar"}, limiter.blocked)
}

func TestScholarSearch_TooManyRequestsReportsBlocked(t *testing.T) {
	s, limiter := newTestScholar(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := s.Search(context.Background(), model.Record{Title: "T"})
	assert.ErrorIs(t, err, ErrBlocked)
	assert.NotEmpty(t, limiter.blocked)
}

func TestScholarSearch_ServerErrorIsTransient(t *testing.T) {
	s, limiter := newTestScholar(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := s.Search(context.Background(), model.Record{Title: "T"})
	assert.ErrorIs(t, err, ErrTransient)
	assert.Empty(t, limiter.blocked)
}
