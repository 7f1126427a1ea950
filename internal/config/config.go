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
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	History   HistoryConfig   `yaml:"history" mapstructure:"history"`
	Crawl     CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	Firecrawl FirecrawlConfig `yaml:"firecrawl" mapstructure:"firecrawl"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Publish   PublishConfig   `yaml:"publish" mapstructure:"publish"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Monitor   MonitorConfig   `yaml:"monitor" mapstructure:"monitor"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	WorkDir   string          `yaml:"work_dir" mapstructure:"work_dir"`
}

// ExtractConfig configures document-to-record extraction.
type ExtractConfig struct {
	MaxWorkers     int      `yaml:"max_workers" mapstructure:"max_workers"`
	VocabularyPath string   `yaml:"vocabulary_path" mapstructure:"vocabulary_path"`
	Strategies     []string `yaml:"strategies" mapstructure:"strategies"`
}

// HistoryConfig locates the persisted historical tables.
type HistoryConfig struct {
	AllPath         string `yaml:"all_path" mapstructure:"all_path"`
	CovidPath       string `yaml:"covid_path" mapstructure:"covid_path"`
	CovidPattern    string `yaml:"covid_pattern" mapstructure:"covid_pattern"`
	LockTimeoutSecs int    `yaml:"lock_timeout_secs" mapstructure:"lock_timeout_secs"`
}

// CrawlConfig configures bulletin link discovery and page fetches.
type CrawlConfig struct {
	IndexURL    string  `yaml:"index_url" mapstructure:"index_url"`
	LinkPrefix  string  `yaml:"link_prefix" mapstructure:"link_prefix"`
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Limit   int    `yaml:"limit" mapstructure:"limit"`
}

// JinaConfig configures the Jina Reader used to render script-built pages.
type JinaConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// WaitFor is a CSS selector the Reader waits for before capturing.
	WaitFor string `yaml:"wait_for" mapstructure:"wait_for"`
}

// OCRConfig configures bulletin text acquisition.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	ServerURL     string `yaml:"server_url" mapstructure:"server_url"`
	Lang          string `yaml:"lang" mapstructure:"lang"`
	Backend       string `yaml:"backend" mapstructure:"backend"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// AnthropicConfig holds Anthropic API settings for the llm extraction strategy.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// StoreConfig configures the document ledger.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PublishConfig configures the Postgres mirror of the historical table.
type PublishConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitorConfig configures ledger health checks and their webhook alerts.
type MonitorConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackRuns         int     `yaml:"lookback_runs" mapstructure:"lookback_runs"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleAfterDays       int     `yaml:"stale_after_days" mapstructure:"stale_after_days"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads ./config.yaml, if present, and the environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path and the environment. An empty
// path looks for an optional config.yaml in the working directory; an
// explicit path must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("SURVEIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("work_dir", "update")
	v.SetDefault("extract.max_workers", 4)
	v.SetDefault("extract.strategies", []string{"heuristic"})
	v.SetDefault("history.all_path", "data/surveillance_all.csv")
	v.SetDefault("history.covid_path", "data/surveillance_covid19.csv")
	v.SetDefault("history.covid_pattern", "新型冠状病毒")
	v.SetDefault("history.lock_timeout_secs", 30)
	v.SetDefault("crawl.index_url", "https://www.chinacdc.cn/jksj/jksj04_14275/")
	v.SetDefault("crawl.link_prefix", "/jksj/jksj04_14275/")
	v.SetDefault("crawl.provider", "listing")
	v.SetDefault("crawl.user_agent", "Mozilla/5.0 (compatible; surveillance-cli/1.0)")
	v.SetDefault("crawl.timeout_secs", 30)
	v.SetDefault("crawl.rate_per_sec", 1.0)
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("firecrawl.limit", 200)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.wait_for", "table")
	v.SetDefault("ocr.provider", "html")
	v.SetDefault("ocr.server_url", "http://localhost:8000")
	v.SetDefault("ocr.lang", "ch")
	v.SetDefault("ocr.backend", "pipeline")
	v.SetDefault("ocr.timeout_secs", 600)
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("store.database_url", "data/ledger.db")
	v.SetDefault("publish.table", "public.surveillance_records")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitor.check_interval_secs", 3600)
	v.SetDefault("monitor.lookback_runs", 10)
	v.SetDefault("monitor.failure_rate_threshold", 0.5)
	v.SetDefault("monitor.stale_after_days", 14)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
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
