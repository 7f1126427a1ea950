package extract

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	numericCleaner = strings.NewReplacer(",", "", "，", "", "％", "", "%", "", "−", "-", "–", "-")
	nonNumeric     = regexp.MustCompile(`[^\d.\-]`)
)

// ParsePercent reads a percentage cell as a plain decimal. Thousands
// separators, percent signs and any other non-numeric characters are
// removed first. Empty, dash-only and unparsable cells yield nil, never 0.
func ParsePercent(s string) *float64 {
	s = norm.NFKC.String(strings.TrimSpace(s))
	s = numericCleaner.Replace(s)
	s = nonNumeric.ReplaceAllString(s, "")
	if s == "" || strings.Trim(s, "-") == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
