// Package ledger persists per-record resolution outcomes so interrupted runs
// resume without repeating terminal work.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dkoval/paperfetch/internal/model"
)

// Entry is a terminal resolution row for one record signature.
type Entry struct {
	Signature    string
	Outcome      string
	Reason       model.FailureReason
	Backend      string
	ArtifactPath string
	SHA256       string
	Attempts     int
	RunID        string
	UpdatedAt    time.Time
}

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
)

// Ledger wraps the SQLite run ledger. Terminal rows are append-once: the
// first writer for a signature wins and later writers are told they lost.
type Ledger struct {
	mu    sync.Mutex
	db    *sql.DB
	runID string
}

// Open opens or creates the ledger database at path and stamps the current
// run with a fresh ID.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	l := &Ledger{db: db, runID: uuid.NewString()}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return l, nil
}

// Close releases the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RunID returns the identifier stamped on rows written by this process.
func (l *Ledger) RunID() string {
	return l.runID
}

func (l *Ledger) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			signature TEXT PRIMARY KEY,
			outcome TEXT NOT NULL,
			reason TEXT,
			backend TEXT,
			artifact_path TEXT,
			sha256 TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			run_id TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			signature TEXT NOT NULL,
			backend TEXT NOT NULL,
			candidate_url TEXT,
			outcome TEXT NOT NULL,
			detail TEXT,
			run_id TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_signature ON attempts(signature)`,
	}
	for _, stmt := range statements {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Terminal returns the terminal entry for a signature, if one exists.
func (l *Ledger) Terminal(ctx context.Context, signature string) (*Entry, bool, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT signature, outcome, reason, backend, artifact_path, sha256, attempts, run_id, updated_at
		 FROM records WHERE signature = ?`, signature)

	var e Entry
	var updatedAt string
	err := row.Scan(&e.Signature, &e.Outcome, &e.Reason, &e.Backend,
		&e.ArtifactPath, &e.SHA256, &e.Attempts, &e.RunID, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying ledger: %w", err)
	}
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &e, true, nil
}

// MarkSucceeded records a success for the signature. It returns false when
// another writer already recorded a terminal outcome for it.
func (l *Ledger) MarkSucceeded(ctx context.Context, signature string, artifact model.Artifact, attempts int) (bool, error) {
	return l.insertTerminal(ctx, Entry{
		Signature:    signature,
		Outcome:      outcomeSucceeded,
		Backend:      artifact.SourceBackend,
		ArtifactPath: artifact.Path,
		SHA256:       artifact.SHA256,
		Attempts:     attempts,
	})
}

// MarkFailed records a failure for the signature. It returns false when
// another writer already recorded a terminal outcome for it.
func (l *Ledger) MarkFailed(ctx context.Context, signature string, reason model.FailureReason, attempts int) (bool, error) {
	return l.insertTerminal(ctx, Entry{
		Signature: signature,
		Outcome:   outcomeFailed,
		Reason:    reason,
		Attempts:  attempts,
	})
}

func (l *Ledger) insertTerminal(ctx context.Context, e Entry) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx,
		`INSERT INTO records (signature, outcome, reason, backend, artifact_path, sha256, attempts, run_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(signature) DO NOTHING`,
		e.Signature, e.Outcome, string(e.Reason), e.Backend,
		e.ArtifactPath, e.SHA256, e.Attempts, l.runID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("writing terminal entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking terminal write: %w", err)
	}
	return n > 0, nil
}

// AppendAttempt records one search or download attempt. Attempts are
// append-only and survive process crashes for postmortems.
func (l *Ledger) AppendAttempt(ctx context.Context, signature string, a model.Attempt) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO attempts (signature, backend, candidate_url, outcome, detail, run_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		signature, a.Backend, a.URL, string(a.Outcome), a.Reason,
		l.runID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("appending attempt: %w", err)
	}
	return nil
}

// AttemptCount returns how many attempts have been recorded for a signature
// across all runs.
func (l *Ledger) AttemptCount(ctx context.Context, signature string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT count(*) FROM attempts WHERE signature = ?`, signature).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting attempts: %w", err)
	}
	return n, nil
}

// Summary aggregates terminal outcomes, for the end-of-run report.
type Summary struct {
	Succeeded int
	Failed    int
	ByReason  map[model.FailureReason]int
}

// Summarize tallies terminal rows written by the given run.
func (l *Ledger) Summarize(ctx context.Context, runID string) (*Summary, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT outcome, reason, count(*) FROM records WHERE run_id = ? GROUP BY outcome, reason`, runID)
	if err != nil {
		return nil, fmt.Errorf("summarizing run: %w", err)
	}
	defer rows.Close()

	s := &Summary{ByReason: make(map[model.FailureReason]int)}
	for rows.Next() {
		var outcome, reason string
		var count int
		if err := rows.Scan(&outcome, &reason, &count); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}
		switch outcome {
		case outcomeSucceeded:
			s.Succeeded += count
		case outcomeFailed:
			s.Failed += count
			if reason != "" {
				s.ByReason[model.FailureReason(reason)] += count
			}
		}
	}
	return s, rows.Err()
}
