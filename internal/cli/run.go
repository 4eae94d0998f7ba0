package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkoval/paperfetch/internal/backend"
	"github.com/dkoval/paperfetch/internal/cache"
	"github.com/dkoval/paperfetch/internal/download"
	"github.com/dkoval/paperfetch/internal/input"
	"github.com/dkoval/paperfetch/internal/ledger"
	"github.com/dkoval/paperfetch/internal/llm"
	"github.com/dkoval/paperfetch/internal/metrics"
	"github.com/dkoval/paperfetch/internal/model"
	"github.com/dkoval/paperfetch/internal/observability"
	"github.com/dkoval/paperfetch/internal/pipeline"
	"github.com/dkoval/paperfetch/internal/ratelimit"
	"github.com/dkoval/paperfetch/internal/report"
	"github.com/dkoval/paperfetch/internal/storage"
	"github.com/dkoval/paperfetch/internal/validate"
	"github.com/dkoval/paperfetch/internal/worker"
)

var (
	concurrency int
	storageDir  string
	ledgerPath  string
	outputDir   string
	noCache     bool
	userAgent   string
	httpProxy   string
	httpsProxy  string
	metricsAddr string

	llmEnabled bool
	llmModel   string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <records.csv>",
	Short: "Resolve a batch of bibliographic records to PDFs",
	Long: `Resolves each record in the input CSV to a stored PDF:
- Search backends in priority order with per-backend rate limits
- Download, validate and deduplicate candidate files
- Record every outcome in the run ledger for resumability
- Write a JSON and Markdown run report

Interrupted runs resume: records with a terminal outcome in the ledger
are skipped on the next invocation.

Example:
  paperfetch run records.csv
  paperfetch run records.csv --concurrency 8 --storage-dir ./papers
  paperfetch run records.csv --llm --llm-model gpt-4o-mini`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default from config)")
	runCmd.Flags().StringVar(&storageDir, "storage-dir", "", "directory for stored PDFs and metadata")
	runCmd.Flags().StringVar(&ledgerPath, "ledger", "", "path to the run ledger database")
	runCmd.Flags().StringVar(&outputDir, "output-dir", "./paperfetch-reports", "output directory for run reports")
	runCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the search-result cache")
	runCmd.Flags().StringVar(&userAgent, "ua", "", "HTTP User-Agent override")
	runCmd.Flags().StringVar(&httpProxy, "http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	runCmd.Flags().StringVar(&httpsProxy, "https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")

	runCmd.Flags().BoolVar(&llmEnabled, "llm", false, "generate an LLM postmortem of the run report")
	runCmd.Flags().StringVar(&llmModel, "llm-model", "gpt-4o-mini", "LLM model name")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cfg)

	logger := observability.NewLogger(cfg.Logging)

	records, warnings, err := input.ReadFile(args[0])
	if err != nil {
		return err
	}
	for _, w := range warnings {
		logger.Warn().Msg(w)
	}
	if len(records) == 0 {
		return fmt.Errorf("no usable records in %s", args[0])
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		metrics.Init()
		srv := metrics.Serve(cfg.Metrics.Addr)
		defer srv.Close()
		logger.Info().Str("addr", cfg.Metrics.Addr).Msg("serving metrics")
	}

	store, err := storage.Open(cfg.Storage.Dir, logger)
	if err != nil {
		return err
	}

	runLedger, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer runLedger.Close()

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: 30,
		BackoffSteps:      model.DefaultBackoffSteps(),
	})

	var searchers []backend.Searcher
	for _, bc := range cfg.EnabledBackends() {
		limiter.Register(bc.ID, ratelimit.Config{
			RequestsPerMinute: bc.RequestsPerMinute,
			MinDelay:          bc.MinDelay,
			BackoffSteps:      bc.BackoffSteps,
		})
		s, err := backend.New(bc, cfg.HTTP, limiter, logger)
		if err != nil {
			return err
		}
		searchers = append(searchers, s)
	}
	if len(searchers) == 0 {
		return fmt.Errorf("no backends enabled")
	}

	var results *cache.Results
	if cfg.Cache.Enabled {
		layered := cache.NewLayeredCache(cfg.Cache.TTL, cfg.Cache.Dir, cfg.Cache.TTL)
		results = cache.NewResults(layered, cfg.Cache.TTL)
	}

	fetcher := download.New(cfg.Download, cfg.HTTP, store.TempDir(), logger)
	checker := validate.New(cfg.Download.MinBytes)

	orch := pipeline.NewOrchestrator(searchers, results, fetcher, checker, store, runLedger, cfg, logger)

	logger.Info().
		Int("records", len(records)).
		Int("workers", cfg.Concurrency.Workers).
		Int("backends", len(searchers)).
		Str("run_id", runLedger.RunID()).
		Msg("starting batch")
	startedAt := time.Now().UTC()

	processor := worker.NewBatchProcessor(orch, cfg.Concurrency.Workers)
	batchResults := processor.ProcessRecords(ctx, records)

	var outcomes []model.Outcome
	var runErr error
	for _, r := range batchResults {
		if r.Error != nil {
			if runErr == nil {
				runErr = r.Error
			}
			logger.Error().Err(r.Error).Str("doi", r.Record.DOI).Msg("record aborted")
			continue
		}
		outcomes = append(outcomes, *r.Outcome)
	}

	if err := writeReport(cmd, cfg, runLedger.RunID(), startedAt, outcomes, warnings); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("run aborted: %w", runErr)
	}
	return nil
}

func applyFlags(cfg *model.Config) {
	if concurrency > 0 {
		cfg.Concurrency.Workers = concurrency
	}
	if storageDir != "" {
		cfg.Storage.Dir = storageDir
	}
	if ledgerPath != "" {
		cfg.Ledger.Path = ledgerPath
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if userAgent != "" {
		cfg.HTTP.UserAgent = userAgent
	}
	if httpProxy != "" {
		cfg.HTTP.HTTPProxy = httpProxy
	}
	if httpsProxy != "" {
		cfg.HTTP.HTTPSProxy = httpsProxy
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if llmEnabled {
		cfg.LLM.Provider = "openai"
		cfg.LLM.Model = llmModel
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

func writeReport(cmd *cobra.Command, cfg *model.Config, runID string, startedAt time.Time, outcomes []model.Outcome, warnings []string) error {
	rep := report.Build(runID, startedAt, outcomes, warnings)

	if cfg.LLM.Provider != "" {
		summarizer, err := llm.NewSummarizer(llm.ConfigFromModel(cfg.LLM))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: LLM summarizer unavailable: %v\n", err)
		} else if err := summarizer.Summarize(cmd.Context(), rep); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	renderer := report.NewRenderer(os.Stdout)
	jsonPath := filepath.Join(outputDir, "report.json")
	mdPath := filepath.Join(outputDir, "report.md")

	if err := renderer.RenderJSON(rep, jsonPath); err != nil {
		return err
	}
	if err := renderer.RenderMarkdown(rep, mdPath); err != nil {
		return err
	}
	if verbose {
		fmt.Printf("✓ Wrote JSON: %s\n", jsonPath)
		fmt.Printf("✓ Wrote Markdown: %s\n", mdPath)
	}

	renderer.RenderSummary(rep)

	if rep.Totals.Failed > 0 && rep.Totals.Succeeded == 0 {
		return fmt.Errorf("no records resolved")
	}
	return nil
}
