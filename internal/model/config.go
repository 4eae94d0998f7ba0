package model

import "time"

// Config is the full runtime configuration.
type Config struct {
	Backends    []BackendConfig   `mapstructure:"backends" yaml:"backends"`
	Download    DownloadConfig    `mapstructure:"download" yaml:"download"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency" yaml:"concurrency"`
	Cache       CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Storage     StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Ledger      LedgerConfig      `mapstructure:"ledger" yaml:"ledger"`
	HTTP        HTTPConfig        `mapstructure:"http" yaml:"http"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	LLM         LLMConfig         `mapstructure:"llm" yaml:"llm"`
}

// BackendConfig describes one search backend and its request budget.
// Order in the Backends slice is the fallback priority order.
type BackendConfig struct {
	ID                string          `mapstructure:"id" yaml:"id"`
	Kind              string          `mapstructure:"kind" yaml:"kind,omitempty"`
	BaseURL           string          `mapstructure:"base_url" yaml:"base_url"`
	RequestsPerMinute int             `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MinDelay          time.Duration   `mapstructure:"min_delay" yaml:"min_delay"`
	MaxRetries        int             `mapstructure:"max_retries" yaml:"max_retries"`
	BackoffSteps      []time.Duration `mapstructure:"backoff_steps" yaml:"backoff_steps"`
	RespectRobots     bool            `mapstructure:"respect_robots" yaml:"respect_robots"`
	Enabled           bool            `mapstructure:"enabled" yaml:"enabled"`
}

// DownloadConfig bounds a single candidate download.
type DownloadConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	StallTimeout time.Duration `mapstructure:"stall_timeout" yaml:"stall_timeout"`
	MaxBytes     int64         `mapstructure:"max_bytes" yaml:"max_bytes"`
	MinBytes     int64         `mapstructure:"min_bytes" yaml:"min_bytes"`
	ChunkBytes   int           `mapstructure:"chunk_bytes" yaml:"chunk_bytes"`
	MaxRedirects int           `mapstructure:"max_redirects" yaml:"max_redirects"`
}

// ConcurrencyConfig sets the worker pool width and the per-record budget.
type ConcurrencyConfig struct {
	Workers       int           `mapstructure:"workers" yaml:"workers"`
	RecordTimeout time.Duration `mapstructure:"record_timeout" yaml:"record_timeout"`
}

// CacheConfig controls the search-result cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Dir     string        `mapstructure:"dir" yaml:"dir"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// StorageConfig locates the artifact store.
type StorageConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// LedgerConfig locates the run ledger database.
type LedgerConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// HTTPConfig holds shared HTTP client settings.
type HTTPConfig struct {
	UserAgent  string        `mapstructure:"user_agent" yaml:"user_agent"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	HTTPProxy  string        `mapstructure:"http_proxy" yaml:"http_proxy"`
	HTTPSProxy string        `mapstructure:"https_proxy" yaml:"https_proxy"`
	NoProxy    string        `mapstructure:"no_proxy" yaml:"no_proxy"`
}

// LoggingConfig controls the zerolog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LLMConfig controls the optional run-report summarizer.
type LLMConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider"`
	Model     string `mapstructure:"model" yaml:"model"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	Timeout   int    `mapstructure:"timeout" yaml:"timeout"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// DefaultConfig returns the built-in defaults: a scholarly search backend
// first, then a mirror fallback. The OpenAlex API backend ships disabled.
func DefaultConfig() *Config {
	return &Config{
		Backends: []BackendConfig{
			{
				ID:                "scholar",
				BaseURL:           "https://scholar.example.org",
				RequestsPerMinute: 10,
				MinDelay:          3 * time.Second,
				MaxRetries:        3,
				BackoffSteps:      DefaultBackoffSteps(),
				RespectRobots:     true,
				Enabled:           true,
			},
			{
				ID:                "mirror",
				BaseURL:           "https://mirror.example.org",
				RequestsPerMinute: 20,
				MinDelay:          2 * time.Second,
				MaxRetries:        3,
				BackoffSteps:      DefaultBackoffSteps(),
				Enabled:           true,
			},
			{
				ID:                "openalex",
				BaseURL:           "https://api.openalex.org",
				RequestsPerMinute: 60,
				MinDelay:          500 * time.Millisecond,
				MaxRetries:        2,
				BackoffSteps:      DefaultBackoffSteps(),
				Enabled:           false,
			},
		},
		Download: DownloadConfig{
			Timeout:      3 * time.Minute,
			StallTimeout: 30 * time.Second,
			MaxBytes:     50 << 20,
			MinBytes:     1 << 10,
			ChunkBytes:   64 << 10,
			MaxRedirects: 5,
		},
		Concurrency: ConcurrencyConfig{Workers: 4, RecordTimeout: 10 * time.Minute},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     "./.paperfetch/cache",
			TTL:     7 * 24 * time.Hour,
		},
		Storage: StorageConfig{Dir: "./papers"},
		Ledger:  LedgerConfig{Path: "./.paperfetch/ledger.db"},
		HTTP: HTTPConfig{
			UserAgent: "paperfetch/0.1 (+https://github.com/dkoval/paperfetch)",
			Timeout:   30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		LLM: LLMConfig{
			Timeout:   30,
			MaxTokens: 800,
		},
	}
}

// DefaultBackoffSteps is the geometric cooldown sequence applied after
// consecutive blocked reports. The last step is the cap.
func DefaultBackoffSteps() []time.Duration {
	return []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}
}

// SearcherKind returns the backend implementation to use, defaulting to the
// backend's ID so stock configs need no explicit kind.
func (b BackendConfig) SearcherKind() string {
	if b.Kind != "" {
		return b.Kind
	}
	return b.ID
}

// EnabledBackends returns the configured backends that are enabled, in
// priority order.
func (c *Config) EnabledBackends() []BackendConfig {
	out := make([]BackendConfig, 0, len(c.Backends))
	for _, b := range c.Backends {
		if b.Enabled {
			out = append(out, b)
		}
	}
	return out
}
