package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool manages a fixed set of workers that execute jobs concurrently.
// Cancelling the parent context stops the pool mid-batch. A job returning
// an error aborts the batch: queued jobs are abandoned while in-flight
// jobs run to completion.
type Pool struct {
	workers    int
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	stop       chan struct{}
	stopOnce   sync.Once
	queueOnce  sync.Once
	closeOnce  sync.Once
}

// NewPool creates a worker pool bound to the given context.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, workers*2),
		results:    make(chan Result, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
		stop:       make(chan struct{}),
	}
}

// Start starts the worker pool
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.stop:
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			select {
			case <-p.stop:
				return
			default:
			}
			result := job.Execute(p.ctx)
			if result.GetError() != nil {
				p.Abort()
			}
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit submits a job to the pool for execution. Submissions after Abort
// or context cancellation are dropped.
func (p *Pool) Submit(job Job) {
	select {
	case <-p.ctx.Done():
		return
	case <-p.stop:
		return
	case p.jobQueue <- job:
	}
}

// Close marks the job stream complete. No Submit may follow.
func (p *Pool) Close() {
	p.queueOnce.Do(func() {
		close(p.jobQueue)
	})
}

// Wait drains results until the workers exit and returns everything they
// produced. Close must be called once all jobs are submitted; results are
// consumed while jobs are still being fed, so submission never stalls on a
// full results channel.
func (p *Pool) Wait() []Result {
	go func() {
		p.wg.Wait()
		p.closeResults()
	}()

	var results []Result
	for result := range p.results {
		results = append(results, result)
	}

	return results
}

// Abort stops dispatching queued jobs. In-flight jobs run to completion
// and their results are still collected.
func (p *Pool) Abort() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
}

// Shutdown stops the pool immediately, abandoning queued jobs.
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
