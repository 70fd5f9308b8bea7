package redaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecognizer struct {
	tokens []RawEntityToken
	err    error
	block  bool
}

func (s stubRecognizer) Recognize(ctx context.Context, _ string) ([]RawEntityToken, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.tokens, s.err
}

func TestEngine_CombinesPatternsAndEntities(t *testing.T) {
	e := NewEngine(stubRecognizer{tokens: []RawEntityToken{
		{Word: "Man", Entity: "B-PER", Score: 0.9},
		{Word: "##ish", Entity: "I-PER", Score: 0.9},
		{Word: "Berlin", Entity: "B-LOC", Score: 0.9},
	}})
	res, out := e.RedactText(context.Background(), "Manish from Berlin, mail manish@x.io", Policy{})

	assert.Equal(t, "[NAME] from [LOCATION], mail [EMAIL]", res.Masked)
	assert.Equal(t, 1, out.PatternSpans)
	assert.Equal(t, 3, out.EntitySpans)
	assert.False(t, out.NERDegraded)
	assert.Equal(t, 1, out.Labels[LabelEmail])
}

func TestEngine_EntitiesIgnorePolicy(t *testing.T) {
	e := NewEngine(stubRecognizer{tokens: []RawEntityToken{{Word: "Ana", Entity: "B-PER", Score: 0.9}}})
	off := Policy{Emails: Bool(false), Phones: Bool(false), Cards: Bool(false)}
	res, _ := e.RedactText(context.Background(), "Ana a@b.com", off)
	assert.Equal(t, "[NAME] a@b.com", res.Masked)
}

func TestEngine_RecognizerErrorDegrades(t *testing.T) {
	boom := errors.New("model offline")
	e := NewEngine(stubRecognizer{err: boom})
	res, out := e.RedactText(context.Background(), "Ana a@b.com", Policy{})

	assert.Equal(t, "Ana [EMAIL]", res.Masked)
	assert.True(t, out.NERDegraded)
	assert.ErrorIs(t, out.NERError, boom)
}

func TestEngine_RecognizerTimeoutDegrades(t *testing.T) {
	e := NewEngine(stubRecognizer{block: true}, WithNERTimeout(20*time.Millisecond))
	start := time.Now()
	res, out := e.RedactText(context.Background(), "call +1-415-555-1212", Policy{})

	require.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, "call [PHONE]", res.Masked)
	assert.True(t, out.NERDegraded)
	assert.ErrorIs(t, out.NERError, context.DeadlineExceeded)
}

func TestEngine_NilRecognizer(t *testing.T) {
	res, out := NewEngine(nil).RedactText(context.Background(), "", Policy{})
	assert.Equal(t, "", res.Masked)
	assert.Empty(t, res.Spans)
	assert.False(t, out.NERDegraded)
}
