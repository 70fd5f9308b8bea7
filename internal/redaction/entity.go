package redaction

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// ContinuationPrefix marks a subword token that continues the previous word.
	ContinuationPrefix = "##"
	// MaxMergeGap is the largest byte gap between two same-label entities
	// that still merges them into one.
	MaxMergeGap = 2
)

// ErrMalformedEntities is returned when a recognizer payload is not a JSON
// array of token records.
var ErrMalformedEntities = errors.New("malformed entity payload")

// RawEntityToken is one token emitted by a token-classification model.
type RawEntityToken struct {
	Word   string  `json:"word"`
	Entity string  `json:"entity"`
	Score  float64 `json:"score"`
}

// Entity is a stitched, located recognizer entity. Start and End are -1
// until the entity has been located in the text.
type Entity struct {
	Word  string  `json:"word"`
	Label Label   `json:"label"`
	Score float64 `json:"score"`
	Start int     `json:"start"`
	End   int     `json:"end"`
}

// AggregateOptions controls which entities become spans.
type AggregateOptions struct {
	IncludeMisc bool
	MinScore    float64
}

// DecodeRawEntityTokens parses a recognizer response. Records without a
// usable word or tag are dropped; scores are clamped to [0, 1]. Both the
// "entity" and "entity_group" tag keys are accepted, and a single level of
// batch nesting is unwrapped.
func DecodeRawEntityTokens(data []byte) ([]RawEntityToken, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEntities, err)
	}
	if len(records) > 0 && len(records[0]) > 0 && records[0][0] == '[' {
		var inner []json.RawMessage
		if err := json.Unmarshal(records[0], &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEntities, err)
		}
		records = inner
	}
	out := make([]RawEntityToken, 0, len(records))
	for _, rec := range records {
		var fields struct {
			Word        *string  `json:"word"`
			Entity      *string  `json:"entity"`
			EntityGroup *string  `json:"entity_group"`
			Score       *float64 `json:"score"`
		}
		if err := json.Unmarshal(rec, &fields); err != nil {
			continue
		}
		if fields.Word == nil || strings.TrimSpace(*fields.Word) == "" {
			continue
		}
		tag := fields.Entity
		if tag == nil || *tag == "" {
			tag = fields.EntityGroup
		}
		if tag == nil || strings.TrimSpace(*tag) == "" {
			continue
		}
		tok := RawEntityToken{Word: *fields.Word, Entity: *tag}
		if fields.Score != nil && !math.IsNaN(*fields.Score) {
			tok.Score = min(max(*fields.Score, 0), 1)
		}
		out = append(out, tok)
	}
	return out, nil
}

// StitchSubwords folds continuation tokens onto the entity before them. The
// stitched entity keeps the label of its first token and the highest score
// seen. A continuation with nothing to attach to starts a new entity with
// the marker stripped.
func StitchSubwords(tokens []RawEntityToken) []Entity {
	var out []Entity
	attached := false
	for _, tok := range tokens {
		label, ok := NormalizeTag(tok.Entity)
		if !ok {
			attached = false
			continue
		}
		word, cont := strings.CutPrefix(tok.Word, ContinuationPrefix)
		if word == "" {
			continue
		}
		if cont && attached {
			last := &out[len(out)-1]
			last.Word += word
			last.Score = max(last.Score, tok.Score)
			continue
		}
		out = append(out, Entity{Word: word, Label: label, Score: tok.Score, Start: -1, End: -1})
		attached = true
	}
	return out
}

// LocateEntities finds every whole-word, case-insensitive occurrence of
// each pending entity in text and returns one located entity per hit.
func LocateEntities(text string, pending []Entity) []Entity {
	var out []Entity
	compiled := make(map[string]*regexp.Regexp)
	for _, ent := range pending {
		word := strings.TrimSpace(ent.Word)
		if word == "" {
			continue
		}
		re, ok := compiled[word]
		if !ok {
			re = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(word))
			compiled[word] = re
		}
		// A hit glued to a word character is retried one rune later, so an
		// overlapping whole-word occurrence is still found.
		for pos := 0; pos < len(text); {
			loc := re.FindStringIndex(text[pos:])
			if loc == nil {
				break
			}
			start, end := pos+loc[0], pos+loc[1]
			if !wordBoundary(text, start, end) {
				_, size := utf8.DecodeRuneInString(text[start:])
				pos = start + size
				continue
			}
			hit := ent
			hit.Start, hit.End = start, end
			out = append(out, hit)
			pos = end
		}
	}
	return out
}

// wordBoundary reports whether text[start:end] is not glued to a word
// character on either side. Edges whose own rune is not a word character
// need no boundary.
func wordBoundary(text string, start, end int) bool {
	first, _ := utf8.DecodeRuneInString(text[start:end])
	if isWordRune(first) && start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(prev) {
			return false
		}
	}
	last, _ := utf8.DecodeLastRuneInString(text[start:end])
	if isWordRune(last) && end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(next) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

// MergeAdjacent sorts located entities by start and folds same-label
// neighbours separated by at most MaxMergeGap bytes. Overlapping
// occurrences of the same label collapse into one.
func MergeAdjacent(entities []Entity) []Entity {
	if len(entities) == 0 {
		return nil
	}
	sorted := slices.Clone(entities)
	slices.SortStableFunc(sorted, func(a, b Entity) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(b.End, a.End))
	})
	out := []Entity{sorted[0]}
	for _, cur := range sorted[1:] {
		last := &out[len(out)-1]
		if cur.Label != last.Label || cur.Start-last.End > MaxMergeGap {
			out = append(out, cur)
			continue
		}
		if cur.End > last.End {
			last.Word += " " + cur.Word
			last.End = cur.End
		}
		last.Score = max(last.Score, cur.Score)
	}
	return out
}

// Aggregate turns raw recognizer tokens into located, merged entities.
func Aggregate(text string, tokens []RawEntityToken) []Entity {
	if text == "" || len(tokens) == 0 {
		return nil
	}
	return MergeAdjacent(LocateEntities(text, StitchSubwords(tokens)))
}

// EntitySpans converts located entities into spans. Only identity labels
// are kept unless opts.IncludeMisc is set.
func EntitySpans(entities []Entity, opts AggregateOptions) []Span {
	var spans []Span
	for _, ent := range entities {
		if ent.Start < 0 || ent.End <= ent.Start {
			continue
		}
		if !ent.Label.Identity() && !opts.IncludeMisc {
			continue
		}
		if ent.Score < opts.MinScore {
			continue
		}
		spans = append(spans, Span{Start: ent.Start, End: ent.End, Label: ent.Label})
	}
	return spans
}
