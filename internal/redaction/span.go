package redaction

import (
	"unicode/utf16"
	"unicode/utf8"
)

// Span is a half-open byte range [Start, End) of the input text tagged with
// the category that caused it to be redacted.
type Span struct {
	Start int   `json:"start"`
	End   int   `json:"end"`
	Label Label `json:"label"`
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

func (s Span) validIn(text string) bool {
	return s.Start >= 0 && s.Start < s.End && s.End <= len(text)
}

// Result is the outcome of masking a text.
type Result struct {
	Masked string `json:"masked"`
	Spans  []Span `json:"spans"`
}

// UTF16Spans converts byte-offset spans of text into UTF-16 code unit
// offsets, the indices JavaScript string slicing uses. Spans returned to
// HTTP and CLI callers go through it.
func UTF16Spans(text string, spans []Span) []Span {
	out := make([]Span, 0, len(spans))
	if len(spans) == 0 {
		return out
	}
	index := make([]int, len(text)+1)
	units := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		for j := range size {
			index[i+j] = units
		}
		units += utf16.RuneLen(r)
		i += size
	}
	index[len(text)] = units
	for _, s := range spans {
		if !s.validIn(text) {
			continue
		}
		out = append(out, Span{Start: index[s.Start], End: index[s.End], Label: s.Label})
	}
	return out
}

// UTF16 returns r with its spans converted by UTF16Spans.
func (r Result) UTF16(text string) Result {
	return Result{Masked: r.Masked, Spans: UTF16Spans(text, r.Spans)}
}

// Policy toggles the categories that get redacted. A nil field means
// enabled, so a zero Policy redacts everything.
type Policy struct {
	Emails *bool `json:"emails,omitempty" yaml:"emails,omitempty"`
	Phones *bool `json:"phones,omitempty" yaml:"phones,omitempty"`
	Cards  *bool `json:"cards,omitempty" yaml:"cards,omitempty"`
	Faces  *bool `json:"faces,omitempty" yaml:"faces,omitempty"`
	Plates *bool `json:"plates,omitempty" yaml:"plates,omitempty"`
	IDs    *bool `json:"ids,omitempty" yaml:"ids,omitempty"`
}

func enabled(b *bool) bool { return b == nil || *b }

// Bool returns a pointer to b, for building policies literally.
func Bool(b bool) *bool { return &b }

// PatternLabels returns the pattern categories the policy enables, in
// detection order.
func (p Policy) PatternLabels() []Label {
	var out []Label
	if enabled(p.Emails) {
		out = append(out, LabelEmail)
	}
	if enabled(p.Phones) {
		out = append(out, LabelPhone)
	}
	if enabled(p.Cards) {
		out = append(out, LabelCard)
	}
	return out
}

// FacesEnabled reports whether face regions should be redacted.
func (p Policy) FacesEnabled() bool { return enabled(p.Faces) }
