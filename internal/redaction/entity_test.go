package redaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTag(t *testing.T) {
	tests := []struct {
		tag  string
		want Label
		ok   bool
	}{
		{"B-PER", LabelName, true},
		{"I-PER", LabelName, true},
		{"PERSON", LabelName, true},
		{"B-LOC", LabelLocation, true},
		{"I-ORG", LabelOrganization, true},
		{"B-MISC", LabelMisc, true},
		{"S-LOC", LabelLocation, true},
		{"O", "", false},
		{"", "", false},
		{"B-DATE", Label("DATE"), true},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, ok := NormalizeTag(tt.tag)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStitchSubwords(t *testing.T) {
	got := StitchSubwords([]RawEntityToken{
		{Word: "Man", Entity: "B-PER", Score: 0.9},
		{Word: "##ish", Entity: "I-PER", Score: 0.95},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "Manish", got[0].Word)
	assert.Equal(t, LabelName, got[0].Label)
	assert.InDelta(t, 0.95, got[0].Score, 1e-9)
	assert.Equal(t, -1, got[0].Start)
}

func TestStitchSubwords_LeadingContinuation(t *testing.T) {
	got := StitchSubwords([]RawEntityToken{
		{Word: "##ville", Entity: "I-LOC", Score: 0.5},
		{Word: "O", Entity: "O"},
		{Word: "##x", Entity: "I-LOC"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "ville", got[0].Word)
	assert.Equal(t, "x", got[1].Word)
}

func TestAggregate_LocatesStitchedEntities(t *testing.T) {
	text := "Manish lives in Paris"
	got := Aggregate(text, []RawEntityToken{
		{Word: "Man", Entity: "B-PER", Score: 0.9},
		{Word: "##ish", Entity: "I-PER", Score: 0.9},
		{Word: "Paris", Entity: "B-LOC", Score: 0.99},
	})
	require.Len(t, got, 2)
	assert.Equal(t, LabelName, got[0].Label)
	assert.Equal(t, 0, got[0].Start)
	assert.Equal(t, 6, got[0].End)
	assert.Equal(t, LabelLocation, got[1].Label)
	assert.Equal(t, "Paris", text[got[1].Start:got[1].End])
}

func TestLocateEntities_WordBoundary(t *testing.T) {
	text := "Parisian cafés in paris"
	got := LocateEntities(text, []Entity{{Word: "Paris", Label: LabelLocation}})
	require.Len(t, got, 1)
	assert.Equal(t, 19, got[0].Start)
	assert.Equal(t, 24, got[0].End)
}

func TestLocateEntities_UnicodeNeighbours(t *testing.T) {
	text := "éAnna Anna"
	got := LocateEntities(text, []Entity{{Word: "Anna", Label: LabelName}})
	require.Len(t, got, 1)
	assert.Equal(t, "Anna", text[got[0].Start:got[0].End])
	assert.Equal(t, len("éAnna "), got[0].Start)
}

func TestLocateEntities_OverlappingRetry(t *testing.T) {
	text := "ba a a"
	got := LocateEntities(text, []Entity{{Word: "a a", Label: LabelName}})
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Start)
	assert.Equal(t, 6, got[0].End)
}

// Every occurrence of a recognised word is masked, including unrelated
// uses of common words. This over-redaction is intended.
func TestAggregate_MasksEveryOccurrence(t *testing.T) {
	text := "May I ask May about it?"
	got := Aggregate(text, []RawEntityToken{{Word: "May", Entity: "B-PER", Score: 0.8}})
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Start)
	assert.Equal(t, 10, got[1].Start)
}

func TestMergeAdjacent(t *testing.T) {
	t.Run("small gap merges", func(t *testing.T) {
		got := MergeAdjacent([]Entity{
			{Word: "New", Label: LabelLocation, Start: 0, End: 6},
			{Word: "York", Label: LabelLocation, Start: 8, End: 14},
		})
		require.Len(t, got, 1)
		assert.Equal(t, 0, got[0].Start)
		assert.Equal(t, 14, got[0].End)
		assert.Equal(t, "New York", got[0].Word)
	})
	t.Run("large gap stays apart", func(t *testing.T) {
		got := MergeAdjacent([]Entity{
			{Label: LabelLocation, Start: 0, End: 6},
			{Label: LabelLocation, Start: 11, End: 17},
		})
		assert.Len(t, got, 2)
	})
	t.Run("different labels stay apart", func(t *testing.T) {
		got := MergeAdjacent([]Entity{
			{Label: LabelName, Start: 0, End: 4},
			{Label: LabelLocation, Start: 5, End: 9},
		})
		assert.Len(t, got, 2)
	})
	t.Run("duplicates collapse", func(t *testing.T) {
		got := MergeAdjacent([]Entity{
			{Word: "Paris", Label: LabelLocation, Start: 10, End: 15},
			{Word: "Paris", Label: LabelLocation, Start: 0, End: 5},
			{Word: "Paris", Label: LabelLocation, Start: 10, End: 15},
		})
		require.Len(t, got, 2)
		assert.Equal(t, "Paris", got[1].Word)
	})
}

func TestEntitySpans_FiltersMisc(t *testing.T) {
	ents := []Entity{
		{Label: LabelName, Start: 0, End: 4, Score: 0.9},
		{Label: LabelMisc, Start: 5, End: 9, Score: 0.9},
		{Label: LabelLocation, Start: 10, End: 14, Score: 0.2},
	}
	assert.Len(t, EntitySpans(ents, AggregateOptions{}), 2)
	assert.Len(t, EntitySpans(ents, AggregateOptions{IncludeMisc: true}), 3)
	assert.Len(t, EntitySpans(ents, AggregateOptions{MinScore: 0.5}), 1)
}

func TestDecodeRawEntityTokens(t *testing.T) {
	t.Run("token records", func(t *testing.T) {
		got, err := DecodeRawEntityTokens([]byte(`[
			{"word":"Man","entity":"B-PER","score":0.99},
			{"word":"##ish","entity":"I-PER","score":1.7},
			{"word":"","entity":"B-LOC"},
			{"word":"x"},
			{"word":"Acme","entity_group":"ORG","score":0.5},
			42
		]`))
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, RawEntityToken{Word: "Man", Entity: "B-PER", Score: 0.99}, got[0])
		assert.InDelta(t, 1.0, got[1].Score, 1e-9)
		assert.Equal(t, "ORG", got[2].Entity)
	})
	t.Run("batch nesting", func(t *testing.T) {
		got, err := DecodeRawEntityTokens([]byte(`[[{"word":"Rome","entity":"B-LOC","score":0.9}]]`))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Rome", got[0].Word)
	})
	t.Run("not an array", func(t *testing.T) {
		_, err := DecodeRawEntityTokens([]byte(`{"error":"loading"}`))
		assert.ErrorIs(t, err, ErrMalformedEntities)
	})
}
