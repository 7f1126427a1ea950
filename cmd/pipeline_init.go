package main

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/surveillance-cli/internal/crawl"
	"github.com/sells-group/surveillance-cli/internal/extract"
	"github.com/sells-group/surveillance-cli/internal/fetcher"
	"github.com/sells-group/surveillance-cli/internal/history"
	"github.com/sells-group/surveillance-cli/internal/ocr"
	"github.com/sells-group/surveillance-cli/internal/pipeline"
	"github.com/sells-group/surveillance-cli/internal/store"
	anthropicpkg "github.com/sells-group/surveillance-cli/pkg/anthropic"
	"github.com/sells-group/surveillance-cli/pkg/firecrawl"
	"github.com/sells-group/surveillance-cli/pkg/jina"
)

// pipelineEnv holds everything the run command needs.
type pipelineEnv struct {
	Ledger  store.Store
	History *history.Store
	Runner  *pipeline.Runner
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Ledger != nil {
		_ = pe.Ledger.Close()
	}
}

// initPipeline validates the run configuration and wires discovery,
// acquisition, extraction, the history store and the ledger. Callers
// should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("run"); err != nil {
		return nil, err
	}

	hs, err := initHistory()
	if err != nil {
		return nil, err
	}
	ex, err := initExtractor()
	if err != nil {
		return nil, err
	}
	textExtractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		return nil, err
	}

	f := initFetcher()
	discoverer, err := crawl.New(cfg.Crawl, cfg.Firecrawl, f)
	if err != nil {
		return nil, err
	}

	var scraper firecrawl.Client
	if cfg.Crawl.Provider == "firecrawl" {
		scraper = firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
	}
	acquirer := pipeline.NewAcquirer(pipeline.AcquirerOptions{
		WorkDir:     cfg.WorkDir,
		OCRProvider: cfg.OCR.Provider,
		Fetcher:     f,
		OCR:         textExtractor,
		Firecrawl:   scraper,
		Reader:      initReader(),
	})

	ledger, err := initLedger(ctx)
	if err != nil {
		return nil, err
	}

	return &pipelineEnv{
		Ledger:  ledger,
		History: hs,
		Runner:  pipeline.NewRunner(discoverer, acquirer, ex, hs, ledger, cfg.Extract.MaxWorkers),
	}, nil
}

// initReader returns the Jina Reader when jina.enabled is set.
func initReader() jina.Client {
	if !cfg.Jina.Enabled {
		return nil
	}
	return jina.NewClient(cfg.Jina.Key,
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithWaitForSelector(cfg.Jina.WaitFor),
	)
}

// initHistory builds the history store from the history section.
func initHistory() (*history.Store, error) {
	var covid *regexp.Regexp
	if cfg.History.CovidPattern != "" {
		re, err := regexp.Compile(cfg.History.CovidPattern)
		if err != nil {
			return nil, eris.Wrap(err, "compile history.covid_pattern")
		}
		covid = re
	}
	return history.NewStore(history.StoreOptions{
		AllPath:     cfg.History.AllPath,
		CovidPath:   cfg.History.CovidPath,
		Covid:       covid,
		LockTimeout: time.Duration(cfg.History.LockTimeoutSecs) * time.Second,
	}), nil
}

// initExtractor builds the strategy chain named in extract.strategies.
func initExtractor() (*extract.Extractor, error) {
	vocab := extract.DefaultVocabulary()
	if cfg.Extract.VocabularyPath != "" {
		v, err := extract.LoadVocabulary(cfg.Extract.VocabularyPath)
		if err != nil {
			return nil, err
		}
		vocab = v
	}

	strategies := make([]extract.Strategy, 0, len(cfg.Extract.Strategies))
	for _, name := range cfg.Extract.Strategies {
		switch name {
		case "heuristic":
			strategies = append(strategies, extract.NewHeuristic(vocab))
		case "llm":
			client := anthropicpkg.NewClient(cfg.Anthropic.Key)
			strategies = append(strategies, extract.NewLLM(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, vocab))
		default:
			return nil, eris.Errorf("unknown extraction strategy %q", name)
		}
	}
	if len(strategies) == 0 {
		strategies = append(strategies, extract.NewHeuristic(vocab))
	}
	zap.L().Debug("extraction strategies", zap.Strings("strategies", cfg.Extract.Strategies))
	return extract.NewExtractor(cfg.Extract.MaxWorkers, strategies...), nil
}

func initFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Crawl.UserAgent,
		Timeout:    time.Duration(cfg.Crawl.TimeoutSecs) * time.Second,
		RatePerSec: cfg.Crawl.RatePerSec,
	})
}

// initLedger opens and migrates the SQLite document ledger.
func initLedger(ctx context.Context) (store.Store, error) {
	dsn := cfg.Store.DatabaseURL
	if dsn == "" {
		dsn = "data/ledger.db"
	}
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, eris.Wrap(err, "create ledger directory")
		}
	}

	st, err := store.NewSQLite(dsn)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate ledger")
	}
	return st, nil
}
