// Package ocr turns acquired bulletin files (PDF or HTML pages) into the
// Markdown-flavored text the extractor reads.
package ocr

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/surveillance-cli/internal/config"
)

// Provider names accepted in ocr.provider.
const (
	ProviderHTML   = "html"
	ProviderLocal  = "local"
	ProviderMinerU = "mineru"
)

// Extractor converts one local file into document text.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case ProviderHTML, "":
		return NewHTMLConverter(), nil
	case ProviderLocal:
		return NewPdfToText(cfg.PdfToTextPath), nil
	case ProviderMinerU:
		if cfg.ServerURL == "" {
			return nil, eris.New("ocr: mineru provider requires ocr.server_url")
		}
		return NewMinerU(MinerUOptions{
			ServerURL: cfg.ServerURL,
			Lang:      cfg.Lang,
			Backend:   cfg.Backend,
			Timeout:   time.Duration(cfg.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}

// NeedsPDF reports whether provider reads PDFs rather than saved HTML pages.
func NeedsPDF(provider string) bool {
	return provider == ProviderLocal || provider == ProviderMinerU
}
