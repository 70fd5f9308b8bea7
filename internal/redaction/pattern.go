package redaction

import (
	"iter"
	"regexp"
	"slices"
)

var (
	EmailPattern = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
	PhonePattern = regexp.MustCompile(`(?:(?:\+\d{1,3}[\s-]?)?\(?\d{2,4}\)?[\s-]?\d{3,4}[\s-]?\d{3,4})`)
	CardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

var patterns = []struct {
	label Label
	re    *regexp.Regexp
}{
	{LabelEmail, EmailPattern},
	{LabelPhone, PhonePattern},
	{LabelCard, CardPattern},
}

// PatternFor returns the detection pattern for a label, or nil when the
// label is not pattern based.
func PatternFor(l Label) *regexp.Regexp {
	for _, p := range patterns {
		if p.label == l {
			return p.re
		}
	}
	return nil
}

// Matches yields the byte offsets of every non-empty, non-overlapping match
// of re in text, left to right. Zero-length matches are skipped, so the
// sequence always terminates.
func Matches(re *regexp.Regexp, text string) iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if loc[1] <= loc[0] {
				continue
			}
			if !yield(loc[0], loc[1]) {
				return
			}
		}
	}
}

// MatchAll scans text for every pattern category.
func MatchAll(text string) []Span {
	return Match(text, LabelEmail, LabelPhone, LabelCard)
}

// Match returns a span for every pattern hit of the given labels. Spans of
// different labels may overlap; Merge resolves them.
func Match(text string, labels ...Label) []Span {
	if text == "" || len(labels) == 0 {
		return nil
	}
	var spans []Span
	for _, p := range patterns {
		if !slices.Contains(labels, p.label) {
			continue
		}
		for start, end := range Matches(p.re, text) {
			spans = append(spans, Span{Start: start, End: end, Label: p.label})
		}
	}
	return spans
}
