package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/privylens/privylens/internal/redaction"
)

func TestEnsureMasked(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		want      bool
	}{
		{"placeholders pass", "[EMAIL] hello [PHONE] [CARD]", true},
		{"empty", "", true},
		{"plain prose", "please summarise the meeting notes", true},
		{"raw email", "a@b.com", false},
		{"raw phone", "call me at +1-415-555-1212", false},
		{"raw card", "4111 1111 1111 1111", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EnsureMasked(tt.candidate))
		})
	}
}

func TestEnsureMasked_AcceptsMergerOutput(t *testing.T) {
	text := "Email a@b.com phone +1-415-555-1212 card 4111 1111 1111 1111"
	res := redaction.Merge(text, redaction.MatchAll(text))
	assert.True(t, EnsureMasked(res.Masked))
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check("[EMAIL]"))

	err := Check("mail a@b.com")
	assert.ErrorIs(t, err, ErrNotMasked)
	assert.Contains(t, err.Error(), "EMAIL")
}

func TestViolations(t *testing.T) {
	got := Violations("a@b.com and 4111 1111 1111 1111")
	assert.Contains(t, got, redaction.LabelEmail)
	assert.Contains(t, got, redaction.LabelCard)
}
