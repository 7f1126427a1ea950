// Package pipeline runs an update: discover bulletin pages, acquire their
// text, extract records, merge them into the history and record every
// outcome in the ledger.
package pipeline

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/surveillance-cli/internal/crawl"
	"github.com/sells-group/surveillance-cli/internal/fetcher"
	"github.com/sells-group/surveillance-cli/internal/model"
	"github.com/sells-group/surveillance-cli/internal/ocr"
	"github.com/sells-group/surveillance-cli/pkg/firecrawl"
	"github.com/sells-group/surveillance-cli/pkg/jina"
)

// ErrNoPDF is returned by a PDF provider when the page links no PDF and no
// rendered PDF was placed in the work directory.
var ErrNoPDF = eris.New("pipeline: no pdf for bulletin")

// Acquirer turns a bulletin page URL into a Document.
type Acquirer interface {
	Acquire(ctx context.Context, pageURL string) (model.Document, error)
}

// AcquirerOptions configures a PageAcquirer.
type AcquirerOptions struct {
	WorkDir     string
	OCRProvider string
	Fetcher     fetcher.Fetcher
	OCR         ocr.Extractor

	// Firecrawl, when set, scrapes the page's raw HTML instead of fetching
	// it directly. Fetch is still used as a fallback and for PDFs.
	Firecrawl firecrawl.Client

	// Reader, when set, renders the page through Jina Reader before the
	// direct fetch is tried.
	Reader jina.Client
}

// PageAcquirer saves each page and its text under WorkDir as
// <name>.html, <name>.pdf and <name>.md.
type PageAcquirer struct {
	opts AcquirerOptions
}

// NewAcquirer creates a PageAcquirer.
func NewAcquirer(opts AcquirerOptions) *PageAcquirer {
	if opts.WorkDir == "" {
		opts.WorkDir = "update"
	}
	return &PageAcquirer{opts: opts}
}

// Acquire implements Acquirer.
func (a *PageAcquirer) Acquire(ctx context.Context, pageURL string) (model.Document, error) {
	name := model.DocumentName(pageURL)
	if name == "" || name == "." {
		return model.Document{}, eris.Errorf("pipeline: cannot name document for %s", pageURL)
	}
	base := filepath.Join(a.opts.WorkDir, name)
	log := zap.L().With(zap.String("document", name), zap.String("url", pageURL))

	page, err := a.page(ctx, pageURL)
	if err != nil {
		return model.Document{}, err
	}
	if err := writeFile(base+".html", page); err != nil {
		return model.Document{}, err
	}

	source := base + ".html"
	if ocr.NeedsPDF(a.opts.OCRProvider) {
		source, err = a.pdf(ctx, pageURL, page, base+".pdf")
		if err != nil {
			return model.Document{}, err
		}
	}

	text, err := a.opts.OCR.ExtractText(ctx, source)
	if err != nil {
		return model.Document{}, eris.Wrapf(err, "pipeline: extract text for %s", name)
	}
	if err := writeFile(base+".md", []byte(text)); err != nil {
		return model.Document{}, err
	}

	log.Info("pipeline: acquired document",
		zap.String("provider", a.opts.OCRProvider),
		zap.Int("chars", len(text)),
	)
	return model.Document{Name: name, URL: pageURL, Text: text}, nil
}

// page returns the page HTML, trying Firecrawl, then Jina Reader, then a
// direct fetch.
func (a *PageAcquirer) page(ctx context.Context, pageURL string) ([]byte, error) {
	if a.opts.Firecrawl != nil {
		resp, err := a.opts.Firecrawl.Scrape(ctx, firecrawl.ScrapeRequest{
			URL:     pageURL,
			Formats: []string{"rawHtml"},
		})
		switch {
		case err != nil:
			zap.L().Warn("pipeline: firecrawl scrape failed, fetching directly",
				zap.String("url", pageURL), zap.Error(err))
		case resp.Data.RawHTML != "":
			return []byte(resp.Data.RawHTML), nil
		case resp.Data.HTML != "":
			return []byte(resp.Data.HTML), nil
		}
	}

	if a.opts.Reader != nil {
		resp, err := a.opts.Reader.Read(ctx, pageURL)
		if err == nil {
			return []byte(resp.Data.Page()), nil
		}
		zap.L().Warn("pipeline: jina read failed, fetching directly",
			zap.String("url", pageURL), zap.Error(err))
	}

	body, err := a.opts.Fetcher.Download(ctx, pageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: fetch page %s", pageURL)
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read page %s", pageURL)
	}
	return data, nil
}

// pdf resolves the bulletin PDF: the first attachment linked from the page,
// else a rendered PDF already at dst.
func (a *PageAcquirer) pdf(ctx context.Context, pageURL string, page []byte, dst string) (string, error) {
	links, err := crawl.Attachments(bytes.NewReader(page), pageURL)
	if err != nil {
		return "", err
	}
	if len(links) > 0 {
		if _, err := a.opts.Fetcher.DownloadToFile(ctx, links[0], dst); err != nil {
			return "", eris.Wrapf(err, "pipeline: download pdf %s", links[0])
		}
		return dst, nil
	}
	if _, err := os.Stat(dst); err == nil {
		zap.L().Info("pipeline: using rendered pdf", zap.String("path", dst))
		return dst, nil
	}
	return "", eris.Wrapf(ErrNoPDF, "pipeline: %s", pageURL)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "pipeline: create work directory")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "pipeline: write %s", path)
	}
	return nil
}
