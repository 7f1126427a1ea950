package ocr

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/surveillance-cli/internal/resilience"
)

// markdownPaths are the response fields MinerU versions have used for the
// converted document, most specific first.
var markdownPaths = []string{
	"results.*.md_content",
	"data.md",
	"data.markdown",
	"data.content",
	"md",
	"markdown",
	"content",
}

// minFallbackLen is the shortest string accepted by the deep-search
// fallback; shorter strings are usually status fields.
const minFallbackLen = 40

// MinerUOptions configures a MinerU client.
type MinerUOptions struct {
	ServerURL string
	Lang      string
	Backend   string
	Timeout   time.Duration
	Retry     resilience.RetryConfig
}

// MinerU converts PDFs to Markdown through a MinerU server's /file_parse
// endpoint. Tables come back as HTML fragments or pipe tables.
type MinerU struct {
	opts    MinerUOptions
	client  *http.Client
	breaker *resilience.CircuitBreaker
}

// NewMinerU creates a MinerU client.
func NewMinerU(opts MinerUOptions) *MinerU {
	opts.ServerURL = strings.TrimRight(opts.ServerURL, "/")
	if opts.Lang == "" {
		opts.Lang = "ch"
	}
	if opts.Backend == "" {
		opts.Backend = "pipeline"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	opts.Retry.OnRetry = resilience.RetryLogger("mineru", "file_parse")

	return &MinerU{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "mineru",
			FailureThreshold: 3,
			ShouldTrip:       resilience.IsTransient,
		}),
	}
}

// ExtractText posts the PDF and returns the Markdown MinerU produced.
func (m *MinerU) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: read pdf %s", pdfPath)
	}

	md, err := resilience.DoVal(ctx, m.opts.Retry, func(ctx context.Context) (string, error) {
		return resilience.ExecuteVal(ctx, m.breaker, func(ctx context.Context) (string, error) {
			return m.parse(ctx, filepath.Base(pdfPath), data)
		})
	})
	if err != nil {
		return "", eris.Wrapf(err, "ocr: mineru %s", pdfPath)
	}

	zap.L().Debug("ocr: mineru converted",
		zap.String("file", pdfPath),
		zap.Int("chars", len(md)),
	)
	return md, nil
}

func (m *MinerU) parse(ctx context.Context, name string, pdf []byte) (string, error) {
	body, contentType, err := m.form(name, pdf)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.opts.ServerURL+"/file_parse", body)
	if err != nil {
		return "", eris.Wrap(err, "ocr: create mineru request")
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrap(err, "ocr: read mineru response"), 0)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", resilience.StatusError("mineru", resp.StatusCode, raw)
	}

	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "text/markdown") || strings.Contains(ct, "text/plain") {
		return string(raw), nil
	}

	md, ok := MarkdownFromJSON(raw)
	if !ok {
		return "", eris.New("ocr: no markdown in mineru response")
	}
	return md, nil
}

func (m *MinerU) form(name string, pdf []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("files", name)
	if err != nil {
		return nil, "", eris.Wrap(err, "ocr: build mineru form")
	}
	if _, err := part.Write(pdf); err != nil {
		return nil, "", eris.Wrap(err, "ocr: build mineru form")
	}

	fields := [][2]string{
		{"lang_list", m.opts.Lang},
		{"backend", m.opts.Backend},
		{"parse_method", "auto"},
		{"formula_enable", "true"},
		{"table_enable", "true"},
		{"return_md", "true"},
		{"return_images", "false"},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", eris.Wrap(err, "ocr: build mineru form")
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", eris.Wrap(err, "ocr: build mineru form")
	}
	return &buf, w.FormDataContentType(), nil
}

// MarkdownFromJSON finds the converted Markdown in a MinerU JSON response.
// Known fields are tried first, then the first long string anywhere in the
// document.
func MarkdownFromJSON(raw []byte) (string, bool) {
	if !gjson.ValidBytes(raw) {
		return "", false
	}
	for _, p := range markdownPaths {
		if v := gjson.GetBytes(raw, p); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			return v.Str, true
		}
	}
	return firstLongString(gjson.ParseBytes(raw))
}

func firstLongString(v gjson.Result) (string, bool) {
	switch {
	case v.Type == gjson.String:
		s := strings.TrimSpace(v.Str)
		return s, len([]rune(s)) > minFallbackLen
	case v.IsObject() || v.IsArray():
		var (
			found string
			ok    bool
		)
		v.ForEach(func(_, child gjson.Result) bool {
			found, ok = firstLongString(child)
			return !ok
		})
		return found, ok
	default:
		return "", false
	}
}
