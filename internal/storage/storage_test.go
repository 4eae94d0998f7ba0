package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoval/paperfetch/internal/model"
)

func openTestStore(t *testing.T, root string) *Store {
	t.Helper()
	s, err := Open(root, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func stageTemp(t *testing.T, s *Store, content string) string {
	t.Helper()
	tmp, err := os.CreateTemp(s.TempDir(), "test-*.part")
	require.NoError(t, err)
	_, err = tmp.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmp.Close())
	return tmp.Name()
}

func TestPromote_WritesArtifactAndSidecar(t *testing.T) {
	root := t.TempDir()
	s := openTestStore(t, root)

	tmpPath := stageTemp(t, s, "%PDF-1.4 content")
	artifact := model.Artifact{
		SHA256:        "abc123",
		ByteSize:      16,
		SourceBackend: "scholar",
		FinalURL:      "https://example.org/a.pdf",
		DOI:           "10.1000/a",
		FetchedAt:     time.Now().UTC(),
	}

	stored, err := s.Promote(tmpPath, "10.1000-a", artifact)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "raw", "10.1000-a.pdf"), stored.Path)

	got, err := os.ReadFile(stored.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 content", string(got))

	// Temp file is gone after the rename.
	_, err = os.Stat(tmpPath)
	assert.True(t, os.IsNotExist(err))

	sidecar, err := s.Sidecar("10.1000-a")
	require.NoError(t, err)
	assert.Equal(t, "abc123", sidecar.SHA256)
	assert.Equal(t, "scholar", sidecar.SourceBackend)
	assert.Equal(t, "10.1000/a", sidecar.DOI)

	assert.True(t, s.Exists("10.1000-a"))
	assert.False(t, s.Exists("10.1000-b"))
}

func TestLookup_DeduplicatesByHash(t *testing.T) {
	s := openTestStore(t, t.TempDir())

	tmpPath := stageTemp(t, s, "%PDF-1.4 same bytes")
	_, err := s.Promote(tmpPath, "first", model.Artifact{SHA256: "samehash"})
	require.NoError(t, err)

	path, found := s.Lookup("samehash")
	assert.True(t, found)
	assert.Contains(t, path, "first.pdf")

	_, found = s.Lookup("otherhash")
	assert.False(t, found)
}

func TestOpen_RebuildsIndexFromSidecars(t *testing.T) {
	root := t.TempDir()

	first := openTestStore(t, root)
	tmpPath := stageTemp(t, first, "%PDF-1.4 persisted")
	_, err := first.Promote(tmpPath, "persisted", model.Artifact{SHA256: "hash-1"})
	require.NoError(t, err)

	second := openTestStore(t, root)
	path, found := second.Lookup("hash-1")
	assert.True(t, found)
	assert.Contains(t, path, "persisted.pdf")
}

func TestOpen_SkipsCorruptSidecars(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "metadata"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "metadata", "bad.yaml"), []byte("\t{{not yaml"), 0o644))

	s := openTestStore(t, root)
	_, found := s.Lookup("anything")
	assert.False(t, found)
}
