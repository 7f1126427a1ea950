package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the settings a command mode depends on are present
// and in range. All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Extract.MaxWorkers < 1 || c.Extract.MaxWorkers > 64 {
		errs = append(errs, "extract.max_workers must be between 1 and 64")
	}

	switch mode {
	case "extract":
		errs = append(errs, c.validateStrategies()...)
	case "merge", "export":
		errs = append(errs, c.validateHistory()...)
	case "run":
		errs = append(errs, c.validateStrategies()...)
		errs = append(errs, c.validateHistory()...)
		errs = append(errs, c.validateCrawl()...)
		errs = append(errs, c.validateOCR()...)
	case "discover":
		errs = append(errs, c.validateCrawl()...)
	case "publish":
		errs = append(errs, c.validateHistory()...)
		if c.Publish.DatabaseURL == "" {
			errs = append(errs, "publish.database_url is required")
		}
		if c.Publish.Table == "" {
			errs = append(errs, "publish.table is required")
		}
	case "serve":
		errs = append(errs, c.validateHistory()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "check":
		errs = append(errs, c.validateMonitor()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateHistory() []string {
	var errs []string
	if c.History.AllPath == "" {
		errs = append(errs, "history.all_path is required")
	}
	if c.History.CovidPath == "" {
		errs = append(errs, "history.covid_path is required")
	}
	if c.History.AllPath != "" && c.History.AllPath == c.History.CovidPath {
		errs = append(errs, "history.all_path and history.covid_path must differ")
	}
	if c.History.LockTimeoutSecs < 0 {
		errs = append(errs, "history.lock_timeout_secs must be >= 0")
	}
	return errs
}

func (c *Config) validateStrategies() []string {
	var errs []string
	if len(c.Extract.Strategies) == 0 {
		errs = append(errs, "extract.strategies must not be empty")
	}
	for _, s := range c.Extract.Strategies {
		switch s {
		case "heuristic":
		case "llm":
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required for the llm strategy")
			}
		default:
			errs = append(errs, fmt.Sprintf("extract.strategies: unknown strategy %q", s))
		}
	}
	return errs
}

func (c *Config) validateCrawl() []string {
	var errs []string
	switch c.Crawl.Provider {
	case "listing":
		if c.Crawl.IndexURL == "" {
			errs = append(errs, "crawl.index_url is required")
		}
	case "firecrawl":
		if c.Firecrawl.Key == "" {
			errs = append(errs, "firecrawl.key is required for the firecrawl provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("crawl.provider: unknown provider %q", c.Crawl.Provider))
	}
	if c.Crawl.RatePerSec < 0 {
		errs = append(errs, "crawl.rate_per_sec must be >= 0")
	}
	return errs
}

func (c *Config) validateOCR() []string {
	switch c.OCR.Provider {
	case "html", "local":
		return nil
	case "mineru":
		if c.OCR.ServerURL == "" {
			return []string{"ocr.server_url is required for the mineru provider"}
		}
		return nil
	default:
		return []string{fmt.Sprintf("ocr.provider: unknown provider %q", c.OCR.Provider)}
	}
}

func (c *Config) validateMonitor() []string {
	var errs []string
	if c.Monitor.LookbackRuns < 1 {
		errs = append(errs, "monitor.lookback_runs must be > 0")
	}
	if c.Monitor.FailureRateThreshold <= 0 || c.Monitor.FailureRateThreshold > 1 {
		errs = append(errs, "monitor.failure_rate_threshold must be in (0, 1]")
	}
	if c.Monitor.StaleAfterDays < 1 {
		errs = append(errs, "monitor.stale_after_days must be > 0")
	}
	return errs
}
