// Package ratelimit implements per-backend request throttling with
// blocking-aware exponential backoff.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dkoval/paperfetch/internal/metrics"
)

// Config holds the request budget for one backend.
type Config struct {
	RequestsPerMinute int
	MinDelay          time.Duration
	BackoffSteps      []time.Duration
}

// Limiter manages per-backend rate limits. Backends are independent:
// acquiring against one never blocks another.
type Limiter struct {
	mu       sync.RWMutex
	backends map[string]*backendState

	defaults Config

	// Injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type backendState struct {
	mu sync.Mutex

	bucket   *rate.Limiter
	minDelay time.Duration
	steps    []time.Duration

	lastGrant     time.Time
	cooldownUntil time.Time
	blocks        int
	requests      uint64
}

// NewLimiter creates a limiter whose unregistered backends fall back to the
// given defaults.
func NewLimiter(defaults Config) *Limiter {
	if len(defaults.BackoffSteps) == 0 {
		defaults.BackoffSteps = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}
	}
	return &Limiter{
		backends: make(map[string]*backendState),
		defaults: defaults,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Register configures the budget for a backend id, replacing any prior state.
func (l *Limiter) Register(id string, cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backends[id] = newState(cfg, l.defaults)
}

func newState(cfg, defaults Config) *backendState {
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if len(cfg.BackoffSteps) == 0 {
		cfg.BackoffSteps = defaults.BackoffSteps
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		// Burst 1 keeps any rolling one-minute span at or under the budget.
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}
	return &backendState{
		bucket:   rate.NewLimiter(limit, 1),
		minDelay: cfg.MinDelay,
		steps:    cfg.BackoffSteps,
	}
}

func (l *Limiter) state(id string) *backendState {
	l.mu.RLock()
	s, ok := l.backends[id]
	l.mu.RUnlock()
	if ok {
		return s
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Double-check after acquiring the write lock.
	if s, ok := l.backends[id]; ok {
		return s
	}
	s = newState(Config{}, l.defaults)
	l.backends[id] = s
	return s
}

// Acquire blocks until the backend may issue a request, then commits the
// slot. It waits out, in order: any active backoff cooldown, the minimum
// inter-request delay, and the token window. It fails only when ctx is
// cancelled or its deadline expires.
func (l *Limiter) Acquire(ctx context.Context, id string) error {
	s := l.state(id)
	start := l.now()

	for {
		s.mu.Lock()
		now := l.now()

		var wait time.Duration
		if s.cooldownUntil.After(now) {
			wait = s.cooldownUntil.Sub(now)
		}
		if !s.lastGrant.IsZero() {
			if d := s.minDelay - now.Sub(s.lastGrant); d > wait {
				wait = d
			}
		}
		if wait > 0 {
			s.mu.Unlock()
			if err := l.sleep(ctx, wait); err != nil {
				return fmt.Errorf("acquire %s: %w", id, err)
			}
			continue
		}

		res := s.bucket.ReserveN(now, 1)
		delay := res.DelayFrom(now)
		if delay > 0 {
			s.mu.Unlock()
			if err := l.sleep(ctx, delay); err != nil {
				res.CancelAt(l.now())
				return fmt.Errorf("acquire %s: %w", id, err)
			}
			s.mu.Lock()
			// A block may have been reported while waiting for the token;
			// give the slot back and honor the new cooldown before granting.
			if s.cooldownUntil.After(l.now()) {
				res.CancelAt(l.now())
				s.mu.Unlock()
				continue
			}
		}

		s.lastGrant = l.now()
		s.requests++
		s.mu.Unlock()

		if waited := l.now().Sub(start); waited > time.Millisecond {
			metrics.ObserveRateLimitDelay(id, waited)
		}
		return nil
	}
}

// ReportBlocked records a blocking signal (429, CAPTCHA) for the backend.
// Each consecutive report advances one step along the backoff sequence,
// capped at the last step, and starts a fresh cooldown.
func (l *Limiter) ReportBlocked(id string) {
	s := l.state(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.blocks
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	s.blocks++
	s.cooldownUntil = l.now().Add(s.steps[idx])
}

// ReportOK records a successful request. If the cooldown has elapsed, the
// backoff sequence resets to its first step.
func (l *Limiter) ReportOK(id string) {
	s := l.state(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if !l.now().Before(s.cooldownUntil) {
		s.blocks = 0
	}
}

// Requests returns how many slots the backend has been granted. Backend
// adapters use this to drive session-rotation thresholds.
func (l *Limiter) Requests(id string) uint64 {
	s := l.state(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
