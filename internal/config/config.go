package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding" mapstructure:"embedding"`
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Browser     BrowserConfig     `yaml:"browser" mapstructure:"browser"`
	Discovery   DiscoveryConfig   `yaml:"discovery" mapstructure:"discovery"`
	Selection   SelectionConfig   `yaml:"selection" mapstructure:"selection"`
	Extraction  ExtractionConfig  `yaml:"extraction" mapstructure:"extraction"`
	Aggregation AggregationConfig `yaml:"aggregation" mapstructure:"aggregation"`
	Social      SocialConfig      `yaml:"social" mapstructure:"social"`
	Batch       BatchConfig       `yaml:"batch" mapstructure:"batch"`
	Job         JobConfig         `yaml:"job" mapstructure:"job"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ModelPricing holds per-model token pricing (USD per 1K tokens).
type ModelPricing struct {
	InPer1K  float64 `yaml:"in_per_1k" mapstructure:"in_per_1k"`
	OutPer1K float64 `yaml:"out_per_1k" mapstructure:"out_per_1k"`
}

// LLMConfig holds model identifiers and pool settings.
type LLMConfig struct {
	Key          string                  `yaml:"key" mapstructure:"key"`
	LargeModelID string                  `yaml:"large_model_id" mapstructure:"large_model_id"`
	SmallModelID string                  `yaml:"small_model_id" mapstructure:"small_model_id"`
	Workers      int                     `yaml:"workers" mapstructure:"workers"`
	RateRPM      int                     `yaml:"rate_rpm" mapstructure:"rate_rpm"`
	MaxRetries   int                     `yaml:"max_retries" mapstructure:"max_retries"`
	Prewarm      bool                    `yaml:"prewarm" mapstructure:"prewarm"`
	Prices       map[string]ModelPricing `yaml:"prices" mapstructure:"prices"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	ModelID   string `yaml:"model_id" mapstructure:"model_id"`
	Dimension int    `yaml:"dimension" mapstructure:"dimension"`
}

// HTTPConfig configures the HTTP fetcher.
type HTTPConfig struct {
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	AcceptLanguage string `yaml:"accept_language" mapstructure:"accept_language"`
	TimeoutSecs    int    `yaml:"timeout_s" mapstructure:"timeout_s"`
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
	MaxBytes       int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
	StrictTLS      bool   `yaml:"strict_tls" mapstructure:"strict_tls"`
}

// BrowserConfig configures the shared headless browser.
type BrowserConfig struct {
	ControlURL           string `yaml:"control_url" mapstructure:"control_url"`
	PageTimeoutSecs      int    `yaml:"page_timeout_s" mapstructure:"page_timeout_s"`
	MaxParallelPages     int    `yaml:"max_parallel_pages" mapstructure:"max_parallel_pages"`
	RestartAfterTimeouts int    `yaml:"restart_after_timeouts" mapstructure:"restart_after_timeouts"`
}

// DiscoveryConfig configures Phase 1 link discovery.
type DiscoveryConfig struct {
	Depth         int    `yaml:"depth" mapstructure:"depth"`
	MaxURLs       int    `yaml:"max_urls" mapstructure:"max_urls"`
	Phase1PageCap int    `yaml:"phase1_page_cap" mapstructure:"phase1_page_cap"`
	StripQuery    bool   `yaml:"strip_query" mapstructure:"strip_query"`
	ExcludeRegex  string `yaml:"exclude_regex" mapstructure:"exclude_regex"`
}

// SelectionConfig configures Phase 2 page selection.
type SelectionConfig struct {
	K                   int      `yaml:"k" mapstructure:"k"`
	Temperature         float64  `yaml:"temperature" mapstructure:"temperature"`
	HeuristicPriorities []string `yaml:"heuristic_priorities" mapstructure:"heuristic_priorities"`
}

// ExtractionConfig configures Phase 3 content extraction.
type ExtractionConfig struct {
	Concurrency     int  `yaml:"concurrency" mapstructure:"concurrency"`
	PageTimeoutSecs int  `yaml:"page_timeout_s" mapstructure:"page_timeout_s"`
	MaxChars        int  `yaml:"max_chars" mapstructure:"max_chars"`
	UseBrowser      bool `yaml:"use_browser" mapstructure:"use_browser"`
}

// AggregationConfig configures Phase 4 intelligence aggregation.
type AggregationConfig struct {
	PerPageChars   int `yaml:"per_page_chars" mapstructure:"per_page_chars"`
	MaxPromptChars int `yaml:"max_prompt_chars" mapstructure:"max_prompt_chars"`
}

// SocialConfig configures Phase 5 social link extraction.
type SocialConfig struct {
	Platforms        []string `yaml:"platforms" mapstructure:"platforms"`
	ConsentSelectors []string `yaml:"consent_selectors" mapstructure:"consent_selectors"`
	ExcludePatterns  []string `yaml:"exclude_patterns" mapstructure:"exclude_patterns"`
	TablesFile       string   `yaml:"tables_file" mapstructure:"tables_file"`
}

// BatchConfig configures the batch supervisor.
type BatchConfig struct {
	Concurrency                 int `yaml:"concurrency" mapstructure:"concurrency"`
	ConsecutiveFailureThreshold int `yaml:"consecutive_failure_threshold" mapstructure:"consecutive_failure_threshold"`
	ProgressEvery               int `yaml:"progress_every" mapstructure:"progress_every"`
	InputQueueSize              int `yaml:"input_queue_size" mapstructure:"input_queue_size"`
}

// JobConfig configures per-job limits. The soft budget only produces a
// warning; the hard timeout fails the job.
type JobConfig struct {
	TimeoutSecs         int  `yaml:"timeout_s" mapstructure:"timeout_s"`
	PhaseSoftBudgetSecs int  `yaml:"phase_soft_budget_s" mapstructure:"phase_soft_budget_s"`
	PartialOK           bool `yaml:"partial_ok" mapstructure:"partial_ok"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BIZINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// SetDefaults installs the default value for every recognized option.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "bizintel.db")

	v.SetDefault("llm.large_model_id", "claude-sonnet-4-5-20250929")
	v.SetDefault("llm.small_model_id", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.workers", 2)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.prewarm", true)

	v.SetDefault("embedding.base_url", "https://api.jina.ai/v1")
	v.SetDefault("embedding.model_id", "jina-embeddings-v3")
	v.SetDefault("embedding.dimension", 1536)

	v.SetDefault("http.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("http.accept_language", "en-US,en;q=0.9")
	v.SetDefault("http.timeout_s", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.max_bytes", 2*1024*1024)
	v.SetDefault("http.strict_tls", false)

	v.SetDefault("browser.page_timeout_s", 30)
	v.SetDefault("browser.max_parallel_pages", 5)
	v.SetDefault("browser.restart_after_timeouts", 3)

	v.SetDefault("discovery.depth", 3)
	v.SetDefault("discovery.max_urls", 1000)
	v.SetDefault("discovery.phase1_page_cap", 50)
	v.SetDefault("discovery.strip_query", true)
	v.SetDefault("discovery.exclude_regex", `(?i)\.(png|jpe?g|gif|svg|webp|ico|css|js|pdf|zip|mp4|webm|woff2?)(\?|$)`)

	v.SetDefault("selection.k", 10)
	v.SetDefault("selection.temperature", 0.1)
	v.SetDefault("selection.heuristic_priorities", []string{
		"/contact", "/about", "/team", "/careers", "/leadership",
		"/products", "/services", "/pricing", "/company",
	})

	v.SetDefault("extraction.concurrency", 10)
	v.SetDefault("extraction.page_timeout_s", 30)
	v.SetDefault("extraction.max_chars", 10000)
	v.SetDefault("extraction.use_browser", false)

	v.SetDefault("aggregation.per_page_chars", 5000)
	v.SetDefault("aggregation.max_prompt_chars", 400000)

	v.SetDefault("batch.concurrency", 3)
	v.SetDefault("batch.consecutive_failure_threshold", 3)
	v.SetDefault("batch.progress_every", 5)
	v.SetDefault("batch.input_queue_size", 0) // 0 = 2*concurrency

	v.SetDefault("job.timeout_s", 120)
	v.SetDefault("job.phase_soft_budget_s", 30)
	v.SetDefault("job.partial_ok", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	if c.Embedding.Dimension <= 0 {
		return eris.New("config: embedding.dimension must be positive")
	}
	if c.Batch.Concurrency <= 0 {
		return eris.New("config: batch.concurrency must be positive")
	}
	if c.LLM.Workers <= 0 {
		return eris.New("config: llm.workers must be positive")
	}
	if c.Selection.K <= 0 {
		return eris.New("config: selection.k must be positive")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// InputQueueCap returns the bounded input queue size for the batch
// supervisor, defaulting to twice the batch concurrency.
func (c *Config) InputQueueCap() int {
	if c.Batch.InputQueueSize > 0 {
		return c.Batch.InputQueueSize
	}
	return 2 * c.Batch.Concurrency
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
