package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoTextLayer is returned when pdftotext finds no text, which for
// bulletins means the PDF is a scanned image and needs MinerU.
var ErrNoTextLayer = eris.New("ocr: pdf has no text layer")

// layoutGap separates columns in pdftotext -layout output.
var layoutGap = regexp.MustCompile(`\s{2,}`)

// minLayoutCells is the narrowest line treated as a table row: a pathogen
// name plus at least the ILI and SARI columns.
const minLayoutCells = 3

// PdfToText extracts text with the pdftotext CLI. It is the fallback when
// no MinerU server is running.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText runs pdftotext in layout mode and rewrites aligned column
// runs as pipe rows so the table locator can score them.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", "-enc", "UTF-8", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: pdftotext %s: %s", pdfPath, strings.TrimSpace(stderr.String()))
	}

	text := strings.ReplaceAll(stdout.String(), "\f", "\n")
	if strings.TrimSpace(text) == "" {
		return "", eris.Wrapf(ErrNoTextLayer, "ocr: pdftotext %s", pdfPath)
	}
	return layoutToPipes(text), nil
}

// layoutToPipes converts lines with at least minLayoutCells gap-separated
// columns into "| a | b | c |" rows. Other lines pass through unchanged.
func layoutToPipes(text string) string {
	lines := strings.Split(text, "\n")
	for i, ln := range lines {
		trimmed := strings.TrimSpace(ln)
		if trimmed == "" || strings.HasPrefix(trimmed, "|") {
			continue
		}
		cells := layoutGap.Split(trimmed, -1)
		if len(cells) < minLayoutCells {
			continue
		}
		lines[i] = "| " + strings.Join(cells, " | ") + " |"
	}
	return strings.Join(lines, "\n")
}
