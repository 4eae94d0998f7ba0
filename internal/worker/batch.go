package worker

import (
	"context"

	"github.com/dkoval/paperfetch/internal/model"
)

// Resolver resolves one record to a stored PDF.
type Resolver interface {
	Resolve(ctx context.Context, rec model.Record) (*model.Outcome, error)
}

// ResolveJob carries one record through the pool.
type ResolveJob struct {
	Record   model.Record
	Resolver Resolver
}

// Execute runs the resolution for the job's record.
func (j *ResolveJob) Execute(ctx context.Context) Result {
	outcome, err := j.Resolver.Resolve(ctx, j.Record)
	return &ResolveResult{
		Record:  j.Record,
		Outcome: outcome,
		Error:   err,
	}
}

// ResolveResult pairs a record with its outcome or a run-stopping error.
type ResolveResult struct {
	Record  model.Record
	Outcome *model.Outcome
	Error   error
}

// GetError returns the error from the resolve result
func (r *ResolveResult) GetError() error {
	return r.Error
}

// BatchProcessor resolves batches of records concurrently.
type BatchProcessor struct {
	resolver    Resolver
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(resolver Resolver, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		resolver:    resolver,
		concurrency: concurrency,
	}
}

// ProcessRecords resolves the records across the pool. Records that share a
// signature are collapsed before submission so two workers never race on the
// same paper within a batch.
func (b *BatchProcessor) ProcessRecords(ctx context.Context, records []model.Record) []*ResolveResult {
	records = dedupeRecords(records)
	if len(records) == 0 {
		return []*ResolveResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	// Feed the queue from its own goroutine so Wait can drain results at
	// the same time; submitting everything up front deadlocks once both
	// channels fill.
	go func() {
		for _, rec := range records {
			pool.Submit(&ResolveJob{Record: rec, Resolver: b.resolver})
		}
		pool.Close()
	}()

	results := pool.Wait()

	resolveResults := make([]*ResolveResult, 0, len(results))
	for _, result := range results {
		resolveResults = append(resolveResults, result.(*ResolveResult))
	}
	return resolveResults
}

func dedupeRecords(records []model.Record) []model.Record {
	seen := make(map[string]bool, len(records))
	var out []model.Record
	for _, rec := range records {
		sig := rec.Signature()
		if seen[sig] {
			continue
		}
		seen[sig] = true
		out = append(out, rec)
	}
	return out
}
