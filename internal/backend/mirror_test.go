package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoval/paperfetch/internal/model"
)

const mirrorArticlePage = `<html><body>
<div id="article">
  <iframe id="pdf" src="//dl.mirror.example/papers/10.1038/nature12345.pdf#navpanes=0"></iframe>
</div>
<div id="buttons">
  <button onclick="location.href='/downloads/nature12345.pdf'">save</button>
</div>
</body></html>`

func newTestMirror(t *testing.T, handler http.HandlerFunc) (*Mirror, *stubLimiter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	limiter := &stubLimiter{}
	m := NewMirror(model.BackendConfig{ID: "mirror", BaseURL: srv.URL},
		model.HTTPConfig{UserAgent: "test"}, limiter, zerolog.Nop())
	return m, limiter
}

func TestMirrorSearch_ExtractsEmbeds(t *testing.T) {
	m, _ := newTestMirror(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/10.1038/nature12345", r.URL.Path)
		fmt.Fprint(w, mirrorArticlePage)
	})

	cands, err := m.Search(context.Background(), model.Record{DOI: "10.1038/nature12345"})
	require.NoError(t, err)
	require.Len(t, cands, 2)

	// Fragment stripped, scheme-relative URL resolved, document order kept.
	assert.Equal(t, "https://dl.mirror.example/papers/10.1038/nature12345.pdf", cands[0].URL)
	assert.Equal(t, 0, cands[0].Rank)
	assert.Equal(t, 1, cands[1].Rank)
}

func TestMirrorSearch_NoDOIIsNotFound(t *testing.T) {
	m, limiter := newTestMirror(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for a DOI-less record")
	})

	_, err := m.Search(context.Background(), model.Record{Title: "only a title"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, limiter.acquired)
}

func TestMirrorSearch_EmptyPageIsNotFound(t *testing.T) {
	m, limiter := newTestMirror(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>article not in database</body></html>")
	})

	_, err := m.Search(context.Background(), model.Record{DOI: "10.1000/missing"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"mirror"}, limiter.ok)
}

func TestMirrorSearch_BlockedPage(t *testing.T) {
	m, limiter := newTestMirror(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>are you a robot?</html>")
	})

	_, err := m.Search(context.Background(), model.Record{DOI: "10.1000/x"})
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Equal(t, []string{"mirror"}, limiter.blocked)
}
