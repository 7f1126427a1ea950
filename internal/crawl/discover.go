package crawl

import (
	"context"
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/surveillance-cli/internal/config"
	"github.com/sells-group/surveillance-cli/internal/fetcher"
	"github.com/sells-group/surveillance-cli/internal/resilience"
	"github.com/sells-group/surveillance-cli/pkg/firecrawl"
)

// Discoverer lists bulletin page URLs.
type Discoverer interface {
	Name() string
	Discover(ctx context.Context) ([]string, error)
}

// New builds the discoverer for cfg.Provider. The firecrawl provider falls
// back to the listing page when Firecrawl fails or finds nothing.
func New(cfg config.CrawlConfig, fc config.FirecrawlConfig, f fetcher.Fetcher) (Discoverer, error) {
	filter, err := NewFilter(cfg.IndexURL, cfg.LinkPrefix)
	if err != nil {
		return nil, err
	}
	listing := NewListing(cfg.IndexURL, filter, f)

	switch cfg.Provider {
	case "listing", "":
		return listing, nil
	case "firecrawl":
		if fc.Key == "" {
			return nil, eris.New("crawl: firecrawl provider requires firecrawl.key")
		}
		client := firecrawl.NewClient(fc.Key, firecrawl.WithBaseURL(fc.BaseURL))
		return Chain{NewFirecrawl(cfg.IndexURL, fc.Limit, filter, client), listing}, nil
	default:
		return nil, eris.Errorf("crawl: unknown provider %q", cfg.Provider)
	}
}

// Listing reads anchors from the listing page.
type Listing struct {
	indexURL string
	filter   *Filter
	fetch    fetcher.Fetcher
}

// NewListing creates a Listing discoverer.
func NewListing(indexURL string, filter *Filter, f fetcher.Fetcher) *Listing {
	return &Listing{indexURL: indexURL, filter: filter, fetch: f}
}

// Name implements Discoverer.
func (l *Listing) Name() string { return "listing" }

// Discover implements Discoverer.
func (l *Listing) Discover(ctx context.Context) ([]string, error) {
	body, err := l.fetch.Download(ctx, l.indexURL)
	if err != nil {
		return nil, eris.Wrap(err, "crawl: fetch listing")
	}
	defer body.Close() //nolint:errcheck

	hrefs, err := Hrefs(body)
	if err != nil {
		return nil, err
	}
	links := l.filter.Apply(hrefs)
	zap.L().Debug("crawl: listing links",
		zap.String("url", l.indexURL),
		zap.Int("anchors", len(hrefs)),
		zap.Int("bulletins", len(links)),
	)
	return links, nil
}

// Firecrawl asks the Firecrawl map endpoint for the site's links.
type Firecrawl struct {
	indexURL string
	limit    int
	filter   *Filter
	client   firecrawl.Client
	retry    resilience.RetryConfig
}

// NewFirecrawl creates a Firecrawl discoverer.
func NewFirecrawl(indexURL string, limit int, filter *Filter, client firecrawl.Client) *Firecrawl {
	if limit <= 0 {
		limit = 5000
	}
	retry := resilience.DefaultRetryConfig()
	retry.ShouldRetry = firecrawlRetryable
	retry.OnRetry = resilience.RetryLogger("firecrawl", "map")
	return &Firecrawl{indexURL: indexURL, limit: limit, filter: filter, client: client, retry: retry}
}

// Name implements Discoverer.
func (f *Firecrawl) Name() string { return "firecrawl" }

// Discover implements Discoverer.
func (f *Firecrawl) Discover(ctx context.Context) ([]string, error) {
	resp, err := resilience.DoVal(ctx, f.retry, func(ctx context.Context) (*firecrawl.MapResponse, error) {
		return f.client.Map(ctx, firecrawl.MapRequest{
			URL:               f.indexURL,
			Limit:             f.limit,
			IncludeSubdomains: true,
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "crawl: firecrawl map")
	}
	if !resp.Success {
		return nil, eris.New("crawl: firecrawl map reported failure")
	}
	return f.filter.Apply(resp.URLs()), nil
}

// firecrawlRetryable retries transient failures except 408, which Firecrawl
// returns when the target site itself is too slow.
func firecrawlRetryable(err error) bool {
	var apiErr *firecrawl.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode != http.StatusRequestTimeout && resilience.IsTransientHTTPStatus(apiErr.StatusCode)
	}
	return resilience.IsTransient(err)
}

// Chain tries each discoverer in order and returns the first non-empty
// result. Failures fall through to the next discoverer.
type Chain []Discoverer

// Name implements Discoverer.
func (c Chain) Name() string { return "chain" }

// Discover implements Discoverer.
func (c Chain) Discover(ctx context.Context) ([]string, error) {
	var lastErr error
	for _, d := range c {
		links, err := d.Discover(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			zap.L().Warn("crawl: discoverer failed", zap.String("discoverer", d.Name()), zap.Error(err))
			lastErr = err
			continue
		}
		if len(links) > 0 {
			zap.L().Info("crawl: discovered bulletins",
				zap.String("discoverer", d.Name()),
				zap.Int("links", len(links)),
			)
			return links, nil
		}
		zap.L().Warn("crawl: discoverer found no bulletins", zap.String("discoverer", d.Name()))
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "crawl: all discoverers failed")
	}
	return nil, nil
}
