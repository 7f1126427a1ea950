package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// contentSelectors locate the bulletin body, most specific first. The
// first two are the containers the CDC site template uses.
var contentSelectors = []string{
	".TRS_Editor",
	".xl-content",
	"article",
	"main",
	"body",
}

// noiseSelectors are removed before conversion.
var noiseSelectors = []string{
	"script", "style", "noscript",
	"nav", "footer", "header",
	"img", "picture", "figure",
	"iframe", "video", "audio", "svg",
	"form", "button", "input", "select",
	".sidebar", ".menu", ".share",
}

const tablePlaceholder = "SURVEILTABLE%dZ"

// HTMLConverter turns a saved bulletin page into Markdown. Tables are kept
// as HTML so merged cells survive for the table locator.
type HTMLConverter struct{}

// NewHTMLConverter creates an HTMLConverter.
func NewHTMLConverter() *HTMLConverter {
	return &HTMLConverter{}
}

// ExtractText reads the HTML file at path and converts it.
func (h *HTMLConverter) ExtractText(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: read html %s", path)
	}
	md, err := h.Convert(string(data))
	if err != nil {
		return "", eris.Wrapf(err, "ocr: convert %s", path)
	}
	return md, nil
}

// Convert isolates the page's main content and renders it as Markdown.
func (h *HTMLConverter) Convert(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", eris.Wrap(err, "ocr: parse html")
	}
	for _, sel := range noiseSelectors {
		doc.Find(sel).Remove()
	}

	var content *goquery.Selection
	for _, sel := range contentSelectors {
		if s := doc.Find(sel); s.Length() > 0 {
			content = s.First()
			break
		}
	}
	if content == nil {
		return "", eris.New("ocr: no content container in html")
	}

	// Swap tables for placeholders so the converter leaves them alone.
	var tables []string
	var tableErr error
	content.Find("table").Each(func(_ int, t *goquery.Selection) {
		if t.ParentsFiltered("table").Length() > 0 {
			return
		}
		outer, err := goquery.OuterHtml(t)
		if err != nil {
			tableErr = err
			return
		}
		t.ReplaceWithHtml("<p>" + fmt.Sprintf(tablePlaceholder, len(tables)) + "</p>")
		tables = append(tables, outer)
	})
	if tableErr != nil {
		return "", eris.Wrap(tableErr, "ocr: serialize table")
	}

	fragment, err := goquery.OuterHtml(content)
	if err != nil {
		return "", eris.Wrap(err, "ocr: serialize content")
	}
	md, err := htmltomarkdown.ConvertString(fragment)
	if err != nil {
		return "", eris.Wrap(err, "ocr: html to markdown")
	}

	for i, t := range tables {
		md = strings.Replace(md, fmt.Sprintf(tablePlaceholder, i), t, 1)
	}
	return strings.TrimSpace(md) + "\n", nil
}
