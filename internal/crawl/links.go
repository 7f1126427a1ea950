// Package crawl discovers weekly bulletin pages on the CDC listing site.
package crawl

import (
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Filter decides which links are bulletin pages: the path contains Prefix,
// ends in .html and is not a listing page (index_N.html).
type Filter struct {
	Prefix string
	base   *url.URL
}

// NewFilter creates a Filter that resolves relative links against base,
// the listing page URL.
func NewFilter(base, prefix string) (*Filter, error) {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return nil, eris.Errorf("crawl: invalid listing url %q", base)
	}
	return &Filter{Prefix: prefix, base: u}, nil
}

// Match resolves href and reports whether it is a bulletin page.
func (f *Filter) Match(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := f.base.ResolveReference(ref)
	u.Fragment = ""

	if !strings.Contains(u.Path, f.Prefix) ||
		!strings.HasSuffix(u.Path, ".html") ||
		strings.Contains(path.Base(u.Path), "index_") {
		return "", false
	}
	return u.String(), true
}

// Apply filters hrefs, returning matching absolute URLs de-duplicated and
// sorted ascending.
func (f *Filter) Apply(hrefs []string) []string {
	seen := make(map[string]bool, len(hrefs))
	var out []string
	for _, h := range hrefs {
		u, ok := f.Match(h)
		if !ok || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Hrefs returns every anchor href in an HTML document, in document order.
func Hrefs(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "crawl: parse html")
	}
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if h, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, h)
		}
	})
	return hrefs, nil
}

// Attachments returns the absolute URLs of PDF links on a bulletin page.
func Attachments(r io.Reader, pageURL string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "crawl: parse page url %s", pageURL)
	}
	hrefs, err := Hrefs(r)
	if err != nil {
		return nil, err
	}

	var out []string
	seen := make(map[string]bool)
	for _, h := range hrefs {
		ref, err := url.Parse(strings.TrimSpace(h))
		if err != nil || !strings.EqualFold(path.Ext(ref.Path), ".pdf") {
			continue
		}
		u := base.ResolveReference(ref).String()
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out, nil
}

// NewLinks returns the links not in seen, newest first. Bulletin URLs embed
// their publication date, so descending string order is newest first.
func NewLinks(links []string, seen map[string]bool) []string {
	var out []string
	for _, l := range links {
		if !seen[l] {
			out = append(out, l)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}
