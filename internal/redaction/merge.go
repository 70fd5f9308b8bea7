package redaction

import (
	"cmp"
	"slices"
	"strings"
)

// MergeSpans sorts spans by start, wider first on ties, and folds
// overlapping or touching spans into one. A merged span keeps the label of
// the span that sorted first. Spans that
// do not fit in text are dropped.
func MergeSpans(text string, spans []Span) []Span {
	valid := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.validIn(text) {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	slices.SortStableFunc(valid, func(a, b Span) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(b.End, a.End))
	})
	out := []Span{valid[0]}
	for _, s := range valid[1:] {
		last := &out[len(out)-1]
		if s.Start <= last.End {
			last.End = max(last.End, s.End)
			continue
		}
		out = append(out, s)
	}
	return out
}

// Mask replaces each span in text with its placeholder. Spans must be
// sorted and disjoint, as MergeSpans returns them.
func Mask(text string, merged []Span) string {
	if len(merged) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for _, s := range merged {
		b.WriteString(text[cursor:s.Start])
		b.WriteString(s.Label.Placeholder())
		cursor = s.End
	}
	b.WriteString(text[cursor:])
	return b.String()
}

// Merge resolves overlapping spans and masks text with the result.
func Merge(text string, spans []Span) Result {
	merged := MergeSpans(text, spans)
	if merged == nil {
		merged = []Span{}
	}
	return Result{Masked: Mask(text, merged), Spans: merged}
}
