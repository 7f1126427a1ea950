// Package extract turns bulletin text into surveillance records: it locates
// candidate tables, scores them, normalizes merged headers, resolves column
// roles and the reporting period, and flattens rows into records.
package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	zeroWidth  = strings.NewReplacer("\u200b", "", "\u200c", "", "\u200d", "", "\ufeff", "")
	wsPattern  = regexp.MustCompile(`\s+`)
	weekNumber = regexp.MustCompile(`第?\s*(\d{1,2})\s*周`)
)

// NormalizeText applies NFKC so OCR artifacts compare equal to their
// canonical forms: Kangxi radicals (⽉ ⽇) become 月 日, full-width digits,
// parentheses and ％ become ASCII. Zero-width characters are removed.
func NormalizeText(s string) string {
	return zeroWidth.Replace(norm.NFKC.String(s))
}

// stripSpace removes every whitespace rune.
func stripSpace(s string) string {
	return wsPattern.ReplaceAllString(s, "")
}

// containsAny reports whether s contains any of keys.
func containsAny(s string, keys []string) bool {
	for _, k := range keys {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// hasWeekNumber reports whether s embeds a week marker such as "第22周" or "22周".
func hasWeekNumber(s string) bool {
	return weekNumber.MatchString(s)
}

// maxWeekNumber returns the largest week number embedded in s, or 0.
func maxWeekNumber(s string) int {
	best := 0
	for _, m := range weekNumber.FindAllStringSubmatch(s, -1) {
		n := atoi(m[1])
		if n > best {
			best = n
		}
	}
	return best
}

// atoi parses a short run of ASCII digits. Non-digits yield 0.
func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
