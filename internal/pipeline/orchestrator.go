// Package pipeline drives one record from bibliographic metadata to a stored
// PDF: search backends in priority order, download candidates, validate, and
// record the terminal outcome in the ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkoval/paperfetch/internal/backend"
	"github.com/dkoval/paperfetch/internal/cache"
	"github.com/dkoval/paperfetch/internal/download"
	"github.com/dkoval/paperfetch/internal/ledger"
	"github.com/dkoval/paperfetch/internal/metrics"
	"github.com/dkoval/paperfetch/internal/model"
	"github.com/dkoval/paperfetch/internal/observability"
)

// Fetcher downloads one candidate URL to a temp file.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*download.Result, error)
}

// Checker decides whether a downloaded file is an acceptable PDF.
type Checker interface {
	Validate(path string) error
}

// ArtifactStore persists validated PDFs and answers content-hash lookups.
type ArtifactStore interface {
	Lookup(sha256 string) (string, bool)
	Promote(tmpPath, slug string, artifact model.Artifact) (model.Artifact, error)
	TempDir() string
}

// RunLedger records attempts and terminal outcomes.
type RunLedger interface {
	Terminal(ctx context.Context, signature string) (*ledger.Entry, bool, error)
	MarkSucceeded(ctx context.Context, signature string, artifact model.Artifact, attempts int) (bool, error)
	MarkFailed(ctx context.Context, signature string, reason model.FailureReason, attempts int) (bool, error)
	AppendAttempt(ctx context.Context, signature string, a model.Attempt) error
}

// Orchestrator resolves records against an ordered list of search backends.
type Orchestrator struct {
	backends      []backend.Searcher
	results       *cache.Results
	fetcher       Fetcher
	checker       Checker
	store         ArtifactStore
	ledger        RunLedger
	retries       map[string]int
	recordTimeout time.Duration
	logger        zerolog.Logger
}

// NewOrchestrator wires the resolution pipeline. The results cache may be
// nil when caching is disabled.
func NewOrchestrator(
	backends []backend.Searcher,
	results *cache.Results,
	fetcher Fetcher,
	checker Checker,
	store ArtifactStore,
	runLedger RunLedger,
	cfg *model.Config,
	logger zerolog.Logger,
) *Orchestrator {
	retries := make(map[string]int, len(cfg.Backends))
	for _, bc := range cfg.Backends {
		retries[bc.ID] = bc.MaxRetries
	}
	return &Orchestrator{
		backends:      backends,
		results:       results,
		fetcher:       fetcher,
		checker:       checker,
		store:         store,
		ledger:        runLedger,
		retries:       retries,
		recordTimeout: cfg.Concurrency.RecordTimeout,
		logger:        logger,
	}
}

// Resolve runs the full state machine for one record. A non-nil error means
// the run itself should stop (ledger failure or cancelled run context);
// per-record failures come back as a failed Outcome with a reason.
func (o *Orchestrator) Resolve(ctx context.Context, rec model.Record) (*model.Outcome, error) {
	sig := rec.Signature()
	log := observability.WithRecord(o.logger, sig, rec.Title)

	if entry, found, err := o.ledger.Terminal(ctx, sig); err != nil {
		return nil, err
	} else if found {
		log.Debug().Str("outcome", entry.Outcome).Msg("resuming terminal record")
		return resumedOutcome(entry), nil
	}

	run := ctx
	if o.recordTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.recordTimeout)
		defer cancel()
	}

	state := &resolution{sig: sig, rec: rec, log: log}
	for _, b := range o.backends {
		if err := o.searchAndDownload(ctx, b, state); err != nil {
			return nil, err
		}
		if state.artifact != nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	return o.finish(ctx, run, state)
}

// resolution carries the mutable state of one record through the backends.
type resolution struct {
	sig      string
	rec      model.Record
	log      zerolog.Logger
	attempts int
	artifact *model.Artifact
	backend  string

	sawCandidates bool
	sawUnblocked  bool
}

func (o *Orchestrator) searchAndDownload(ctx context.Context, b backend.Searcher, state *resolution) error {
	candidates, blocked, err := o.search(ctx, b, state)
	if err != nil {
		return err
	}
	if !blocked {
		state.sawUnblocked = true
	}
	if len(candidates) == 0 {
		return nil
	}
	state.sawCandidates = true

	for _, cand := range candidates {
		if ctx.Err() != nil {
			return nil
		}
		ok, err := o.tryCandidate(ctx, cand, state)
		if err != nil {
			return err
		}
		if ok {
			state.backend = b.ID()
			return nil
		}
	}
	return nil
}

// search returns the backend's candidates, consulting the cache first. The
// blocked flag reports whether every search try ended blocked.
func (o *Orchestrator) search(ctx context.Context, b backend.Searcher, state *resolution) ([]model.Candidate, bool, error) {
	if cached, found := o.results.Get(state.sig, b.ID()); found {
		state.log.Debug().Str("backend", b.ID()).Int("candidates", len(cached)).Msg("cache hit")
		return cached, false, nil
	}

	maxRetries := o.retries[b.ID()]
	blocked := false
	for attempt := 0; ; attempt++ {
		candidates, err := b.Search(ctx, state.rec)
		state.attempts++

		if err == nil {
			metrics.IncAttempt(b.ID(), "search_ok")
			o.appendAttempt(ctx, state, b.ID(), "", model.AttemptSuccess, "")
			_ = o.results.Put(state.sig, b.ID(), candidates)
			return candidates, false, nil
		}

		switch {
		case errors.Is(err, backend.ErrNotFound):
			metrics.IncAttempt(b.ID(), "search_miss")
			o.appendAttempt(ctx, state, b.ID(), "", model.AttemptTerminalFailure, "not_found")
			_ = o.results.Put(state.sig, b.ID(), nil)
			return nil, false, nil
		case errors.Is(err, backend.ErrBlocked):
			blocked = true
			metrics.IncAttempt(b.ID(), "search_blocked")
			o.appendAttempt(ctx, state, b.ID(), "", model.AttemptRetryableFailure, "blocked")
		case errors.Is(err, backend.ErrTransient):
			metrics.IncAttempt(b.ID(), "search_transient")
			o.appendAttempt(ctx, state, b.ID(), "", model.AttemptRetryableFailure, "transient")
		default:
			if ctx.Err() != nil {
				return nil, blocked, nil
			}
			metrics.IncAttempt(b.ID(), "search_error")
			o.appendAttempt(ctx, state, b.ID(), "", model.AttemptRetryableFailure, err.Error())
		}

		if attempt >= maxRetries || ctx.Err() != nil {
			state.log.Debug().Str("backend", b.ID()).Err(err).Msg("backend exhausted")
			return nil, blocked, nil
		}
	}
}

// tryCandidate downloads, validates and stores one candidate. It reports
// success via the state's artifact fields.
func (o *Orchestrator) tryCandidate(ctx context.Context, cand model.Candidate, state *resolution) (bool, error) {
	state.attempts++

	res, err := o.fetcher.Fetch(ctx, cand.URL)
	if err != nil {
		metrics.IncAttempt(cand.Backend, "download_failed")
		o.appendAttempt(ctx, state, cand.Backend, cand.URL, model.AttemptRetryableFailure, err.Error())
		state.log.Debug().Str("url", cand.URL).Err(err).Msg("download failed")
		return false, nil
	}

	if err := o.checker.Validate(res.Path); err != nil {
		os.Remove(res.Path)
		metrics.IncAttempt(cand.Backend, "validation_failed")
		o.appendAttempt(ctx, state, cand.Backend, cand.URL, model.AttemptRetryableFailure, err.Error())
		state.log.Debug().Str("url", cand.URL).Err(err).Msg("validation failed")
		return false, nil
	}

	artifact := model.Artifact{
		SHA256:        res.SHA256,
		ByteSize:      res.ByteSize,
		SourceBackend: cand.Backend,
		FinalURL:      res.FinalURL,
		DOI:           model.NormalizeDOI(state.rec.DOI),
		Title:         state.rec.Title,
		FetchedAt:     time.Now().UTC(),
	}

	// Same bytes already stored under another record: point at the existing
	// artifact instead of writing a copy.
	if existing, found := o.store.Lookup(res.SHA256); found {
		os.Remove(res.Path)
		artifact.Path = existing
		state.artifact = &artifact
		metrics.IncAttempt(cand.Backend, "dedup_hit")
		o.appendAttempt(ctx, state, cand.Backend, cand.URL, model.AttemptSuccess, "duplicate_content")
		return true, nil
	}

	stored, err := o.store.Promote(res.Path, state.rec.Slug(), artifact)
	if err != nil {
		os.Remove(res.Path)
		metrics.IncAttempt(cand.Backend, "storage_failed")
		o.appendAttempt(ctx, state, cand.Backend, cand.URL, model.AttemptTerminalFailure, err.Error())
		state.log.Error().Err(err).Msg("storing artifact failed")
		return false, fmt.Errorf("storing artifact: %w", err)
	}

	state.artifact = &stored
	metrics.IncAttempt(cand.Backend, "success")
	o.appendAttempt(ctx, state, cand.Backend, cand.URL, model.AttemptSuccess, "")
	return true, nil
}

// finish writes the terminal ledger entry and builds the outcome. run is
// the context as handed to Resolve, before the per-record timeout wrap.
func (o *Orchestrator) finish(ctx, run context.Context, state *resolution) (*model.Outcome, error) {
	// Ledger writes must land even when the record's context expired.
	writeCtx := context.WithoutCancel(ctx)

	if state.artifact != nil {
		won, err := o.ledger.MarkSucceeded(writeCtx, state.sig, *state.artifact, state.attempts)
		if err != nil {
			return nil, err
		}
		if !won {
			entry, _, terr := o.ledger.Terminal(writeCtx, state.sig)
			if terr == nil && entry != nil {
				return resumedOutcome(entry), nil
			}
		}
		metrics.IncRecord("succeeded")
		state.log.Info().Str("backend", state.backend).Str("path", state.artifact.Path).Msg("resolved")
		return &model.Outcome{
			Signature: state.sig,
			Succeeded: true,
			Backend:   state.backend,
			Artifact:  state.artifact,
			Attempts:  state.attempts,
		}, nil
	}

	// Run-level cancellation is not a terminal outcome: leave the record
	// open so the next run retries it. Only the record's own timeout below
	// is allowed to write deadline_exceeded.
	if run.Err() != nil {
		return nil, run.Err()
	}

	reason := state.failureReason(ctx)
	if _, err := o.ledger.MarkFailed(writeCtx, state.sig, reason, state.attempts); err != nil {
		return nil, err
	}
	metrics.IncRecord("failed")
	state.log.Info().Str("reason", string(reason)).Int("attempts", state.attempts).Msg("unresolved")
	return &model.Outcome{
		Signature: state.sig,
		Succeeded: false,
		Reason:    reason,
		Attempts:  state.attempts,
	}, nil
}

func (s *resolution) failureReason(ctx context.Context) model.FailureReason {
	switch {
	case ctx.Err() != nil:
		return model.FailDeadline
	case s.sawCandidates:
		return model.FailAllDownloadsBad
	case !s.sawUnblocked:
		return model.FailAllBackendsBlocked
	default:
		return model.FailNoCandidates
	}
}

func (o *Orchestrator) appendAttempt(ctx context.Context, state *resolution, backendID, url string, outcome model.AttemptOutcome, reason string) {
	err := o.ledger.AppendAttempt(context.WithoutCancel(ctx), state.sig, model.Attempt{
		Signature: state.sig,
		Backend:   backendID,
		URL:       url,
		Outcome:   outcome,
		Reason:    reason,
		At:        time.Now().UTC(),
	})
	if err != nil {
		state.log.Warn().Err(err).Msg("recording attempt failed")
	}
}

func resumedOutcome(entry *ledger.Entry) *model.Outcome {
	out := &model.Outcome{
		Signature: entry.Signature,
		Succeeded: entry.Outcome == "succeeded",
		Backend:   entry.Backend,
		Reason:    entry.Reason,
		Attempts:  entry.Attempts,
		Resumed:   true,
	}
	if out.Succeeded {
		out.Artifact = &model.Artifact{
			Path:          entry.ArtifactPath,
			SHA256:        entry.SHA256,
			SourceBackend: entry.Backend,
		}
	}
	return out
}
