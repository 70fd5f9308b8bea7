package ner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testVocab = []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "man", "##ish", "lives", "in", "paris", ","}

func TestWordPiece_TokenizeOffsets(t *testing.T) {
	tok := NewWordPiece(testVocab, true)
	text := "Manish lives in Paris,"
	pieces := tok.Tokenize(text)

	require.Len(t, pieces, 6)
	assert.Equal(t, Piece{ID: 4, Start: 0, End: 3}, pieces[0])
	assert.Equal(t, Piece{ID: 5, Start: 3, End: 6, Continuation: true}, pieces[1])
	assert.Equal(t, "Paris", text[pieces[4].Start:pieces[4].End])
	assert.Equal(t, ",", text[pieces[5].Start:pieces[5].End])
}

func TestWordPiece_UnknownWord(t *testing.T) {
	tok := NewWordPiece(testVocab, true)
	pieces := tok.Tokenize("zzz in")
	require.Len(t, pieces, 2)
	assert.Equal(t, Piece{ID: 1, Start: 0, End: 3}, pieces[0])
}

func TestWordPiece_CasedVocabMisses(t *testing.T) {
	tok := NewWordPiece(testVocab, false)
	pieces := tok.Tokenize("Paris")
	require.Len(t, pieces, 1)
	assert.Equal(t, int64(1), pieces[0].ID)
}

func TestWordPiece_WindowsKeepWordsTogether(t *testing.T) {
	tok := NewWordPiece(testVocab, true)
	pieces := tok.Tokenize("Manish lives in Paris,")

	windows := tok.Windows(pieces, 5)
	require.Len(t, windows, 2)
	assert.Equal(t, []int64{2, 4, 5, 6, 3}, windows[0].IDs)
	assert.Equal(t, []int64{2, 7, 8, 9, 3}, windows[1].IDs)

	windows = tok.Windows(pieces, 4)
	require.Len(t, windows, 3)
	assert.Equal(t, []int64{2, 4, 5, 3}, windows[0].IDs)
}

func TestWordPiece_WindowPadding(t *testing.T) {
	tok := NewWordPiece(testVocab, true)
	windows := tok.Windows(tok.Tokenize("in paris"), 6)
	require.Len(t, windows, 1)
	w := windows[0]
	assert.Equal(t, []int64{2, 7, 8, 3, 0, 0}, w.IDs)
	assert.Equal(t, []int64{1, 1, 1, 1, 0, 0}, w.Mask)
	assert.Equal(t, -1, w.Pieces[0].Start)
	assert.Equal(t, -1, w.Pieces[5].Start)
}

func TestWordPiece_NoWindowsForEmptyInput(t *testing.T) {
	tok := NewWordPiece(testVocab, true)
	assert.Nil(t, tok.Windows(nil, 8))
	assert.Nil(t, tok.Windows(tok.Tokenize("in"), 2))
}
