package trip

import (
	"strings"
	"time"
)

// acceptedDateLayouts covers the date forms users and the extractor produce.
// Everything is folded to the canonical YYYY-MM-DD so cache keys derived
// from dates are stable (case/whitespace folding only, per design).
var acceptedDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

// NormalizeDestination folds a place name for cache keying and comparison:
// trimmed, inner whitespace collapsed, lower-cased.
func NormalizeDestination(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}

// NormalizeDate parses a date in any accepted layout and re-renders it as
// YYYY-MM-DD. Unparseable input is returned trimmed so the tracker can still
// surface it as uncertain.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range acceptedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}
