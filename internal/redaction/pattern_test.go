package redaction

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch_Email(t *testing.T) {
	spans := Match("contact a@b.com now", LabelEmail)
	require.Len(t, spans, 1)
	assert.Equal(t, Span{Start: 8, End: 15, Label: LabelEmail}, spans[0])
}

func TestMatch_CaseInsensitiveEmail(t *testing.T) {
	spans := Match("JANE.DOE@EXAMPLE.ORG", LabelEmail)
	require.Len(t, spans, 1)
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, 20, spans[0].End)
}

func TestMatch_NoLabelsNoSpans(t *testing.T) {
	assert.Empty(t, Match("a@b.com", (Policy{
		Emails: Bool(false), Phones: Bool(false), Cards: Bool(false),
	}).PatternLabels()...))
	assert.Empty(t, MatchAll(""))
}

func TestMatch_PolicyDisablesCategory(t *testing.T) {
	text := "mail a@b.com or call +1-415-555-1212"
	spans := Match(text, (Policy{Emails: Bool(false)}).PatternLabels()...)
	for _, s := range spans {
		assert.NotEqual(t, LabelEmail, s.Label)
	}
	assert.NotEmpty(t, spans)
}

func TestRoundTrip_DefaultPolicy(t *testing.T) {
	text := "Email a@b.com phone +1-415-555-1212 card 4111 1111 1111 1111"
	res := Merge(text, Match(text, Policy{}.PatternLabels()...))

	assert.Contains(t, res.Masked, "[EMAIL]")
	assert.Contains(t, res.Masked, "[PHONE]")
	assert.Contains(t, res.Masked, "[CARD]")
	assert.GreaterOrEqual(t, len(res.Spans), 3)
	assert.Equal(t, "Email [EMAIL] phone [PHONE] card [CARD]", res.Masked)
}

func TestMatches_SkipsZeroWidth(t *testing.T) {
	re := regexp.MustCompile(`x*`)
	var got [][2]int
	for start, end := range Matches(re, "axxb") {
		got = append(got, [2]int{start, end})
	}
	assert.Equal(t, [][2]int{{1, 3}}, got)
}

func TestMatches_StopsEarly(t *testing.T) {
	n := 0
	for range Matches(regexp.MustCompile(`\d`), "1 2 3 4") {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestPatternFor(t *testing.T) {
	assert.Same(t, EmailPattern, PatternFor(LabelEmail))
	assert.Same(t, CardPattern, PatternFor(LabelCard))
	assert.Nil(t, PatternFor(LabelName))
}
