package model

import (
	"path"
	"regexp"
	"strings"
)

// Document is the Markdown-flavored text of one bulletin.
type Document struct {
	// Name is the originating filename; it may embed a publication date (t20251015_312973.pdf).
	Name string
	URL  string
	Text string
}

var fileIDPattern = regexp.MustCompile(`t\d{8}_\d+`)

// FileID returns the bulletin identifier (t20251015_312973) embedded in a
// URL or filename, or "" when there is none.
func FileID(s string) string {
	return fileIDPattern.FindString(s)
}

// DocumentName derives a stable document name from a URL: the file id when
// present, otherwise the last path element without its extension.
func DocumentName(rawURL string) string {
	if id := FileID(rawURL); id != "" {
		return id
	}
	base := path.Base(strings.TrimRight(rawURL, "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}
