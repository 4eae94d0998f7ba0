// Package metrics exposes Prometheus collectors for the resolution pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	attemptsTotal        *prometheus.CounterVec
	recordsTotal         *prometheus.CounterVec
	downloadedBytesTotal prometheus.Counter
	rateLimitDelaySecs   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		attemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperfetch_attempts_total",
				Help: "Resolution attempts, labeled by backend and outcome.",
			},
			[]string{"backend", "outcome"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperfetch_records_total",
				Help: "Records reaching a terminal state, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		downloadedBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "paperfetch_downloaded_bytes_total",
				Help: "Total bytes of validated PDF artifacts.",
			},
		)

		rateLimitDelaySecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paperfetch_rate_limit_delay_seconds",
				Help:    "Delay introduced by the per-backend rate limiter.",
				Buckets: []float64{.01, .1, .5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"backend"},
		)
	})
}

// IncAttempt counts one resolution attempt.
func IncAttempt(backend, outcome string) {
	if attemptsTotal == nil {
		return
	}
	attemptsTotal.WithLabelValues(backend, outcome).Inc()
}

// IncRecord counts one record reaching a terminal state.
func IncRecord(outcome string) {
	if recordsTotal == nil {
		return
	}
	recordsTotal.WithLabelValues(outcome).Inc()
}

// AddDownloadedBytes accumulates validated artifact bytes.
func AddDownloadedBytes(n int64) {
	if downloadedBytesTotal == nil {
		return
	}
	downloadedBytesTotal.Add(float64(n))
}

// ObserveRateLimitDelay records the wait a caller spent in Acquire.
func ObserveRateLimitDelay(backend string, d time.Duration) {
	if rateLimitDelaySecs == nil {
		return
	}
	rateLimitDelaySecs.WithLabelValues(backend).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a metrics listener on addr. It returns the server so the
// caller can shut it down.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
