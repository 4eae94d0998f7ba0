package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoval/paperfetch/internal/model"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestMarkSucceeded_FirstWriterWins(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	artifact := model.Artifact{
		Path:          "/data/raw/10.1000-a.pdf",
		SHA256:        "deadbeef",
		SourceBackend: "scholar",
	}
	won, err := l.MarkSucceeded(ctx, "10.1000/a", artifact, 2)
	require.NoError(t, err)
	assert.True(t, won)

	// Second terminal write for the same signature loses.
	won, err = l.MarkFailed(ctx, "10.1000/a", model.FailAllDownloadsBad, 5)
	require.NoError(t, err)
	assert.False(t, won)

	entry, found, err := l.Terminal(ctx, "10.1000/a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "succeeded", entry.Outcome)
	assert.Equal(t, "scholar", entry.Backend)
	assert.Equal(t, "deadbeef", entry.SHA256)
	assert.Equal(t, 2, entry.Attempts)
	assert.Equal(t, l.RunID(), entry.RunID)
}

func TestTerminal_Miss(t *testing.T) {
	l := openTestLedger(t)
	_, found, err := l.Terminal(context.Background(), "10.1000/unseen")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResume_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	first, err := Open(path)
	require.NoError(t, err)
	_, err = first.MarkFailed(ctx, "10.1000/b", model.FailNoCandidates, 3)
	require.NoError(t, err)
	firstRun := first.RunID()
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	assert.NotEqual(t, firstRun, second.RunID())

	entry, found, err := second.Terminal(ctx, "10.1000/b")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "failed", entry.Outcome)
	assert.Equal(t, model.FailNoCandidates, entry.Reason)
	assert.Equal(t, firstRun, entry.RunID)
}

func TestAppendAttempt_AndCount(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := l.AppendAttempt(ctx, "10.1000/c", model.Attempt{
			Backend: "scholar",
			URL:     "https://example.org/c.pdf",
			Outcome: model.AttemptRetryableFailure,
			Reason:  "blocked",
		})
		require.NoError(t, err)
	}

	n, err := l.AttemptCount(ctx, "10.1000/c")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = l.AttemptCount(ctx, "10.1000/other")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSummarize(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	_, err := l.MarkSucceeded(ctx, "sig-1", model.Artifact{SourceBackend: "scholar"}, 1)
	require.NoError(t, err)
	_, err = l.MarkSucceeded(ctx, "sig-2", model.Artifact{SourceBackend: "mirror"}, 1)
	require.NoError(t, err)
	_, err = l.MarkFailed(ctx, "sig-3", model.FailNoCandidates, 3)
	require.NoError(t, err)
	_, err = l.MarkFailed(ctx, "sig-4", model.FailAllBackendsBlocked, 6)
	require.NoError(t, err)

	s, err := l.Summarize(ctx, l.RunID())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 1, s.ByReason[model.FailNoCandidates])
	assert.Equal(t, 1, s.ByReason[model.FailAllBackendsBlocked])
}
