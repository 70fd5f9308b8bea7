package ner

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	continuation     = "##"
	maxCharsPerWord  = 100
	specialTokenSpan = -1
)

// Piece is one WordPiece token with its byte range in the source text.
// Special tokens carry Start and End of -1.
type Piece struct {
	ID           int64
	Start        int
	End          int
	Continuation bool
}

// WordPiece is a BERT-compatible WordPiece tokenizer that keeps byte
// offsets into the original text.
type WordPiece struct {
	vocab     map[string]int64
	lowerCase bool
	clsID     int64
	sepID     int64
	padID     int64
	unkID     int64
}

// LoadWordPiece reads a vocab.txt file, one token per line.
func LoadWordPiece(path string, lowerCase bool) (*WordPiece, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	var tokens []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		token := strings.TrimSpace(sc.Text())
		if token == "" {
			continue
		}
		tokens = append(tokens, token)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan vocab: %w", err)
	}
	return NewWordPiece(tokens, lowerCase), nil
}

// NewWordPiece builds a tokenizer from an ordered vocabulary.
func NewWordPiece(tokens []string, lowerCase bool) *WordPiece {
	vocab := make(map[string]int64, len(tokens))
	for i, tok := range tokens {
		vocab[tok] = int64(i)
	}
	return &WordPiece{
		vocab:     vocab,
		lowerCase: lowerCase,
		clsID:     vocab["[CLS]"],
		sepID:     vocab["[SEP]"],
		padID:     vocab["[PAD]"],
		unkID:     vocab["[UNK]"],
	}
}

// Tokenize splits text into pieces without special tokens.
func (t *WordPiece) Tokenize(text string) []Piece {
	var out []Piece
	for _, w := range splitWords(text) {
		out = append(out, t.wordPieces(text[w.start:w.end], w.start)...)
	}
	return out
}

// Window is one model input: pieces framed by [CLS] and [SEP] and padded
// to the sequence length.
type Window struct {
	IDs    []int64
	Mask   []int64
	Pieces []Piece
}

// Windows packs pieces into model inputs of seqLen tokens. A word is never
// split across windows unless it alone exceeds the window.
func (t *WordPiece) Windows(pieces []Piece, seqLen int) []Window {
	capacity := seqLen - 2
	if capacity <= 0 || len(pieces) == 0 {
		return nil
	}
	var out []Window
	for start := 0; start < len(pieces); {
		end := min(start+capacity, len(pieces))
		if end < len(pieces) {
			cut := end
			for cut > start+1 && pieces[cut].Continuation {
				cut--
			}
			if cut > start+1 || !pieces[cut].Continuation {
				end = cut
			}
		}
		out = append(out, t.frame(pieces[start:end], seqLen))
		start = end
	}
	return out
}

func (t *WordPiece) frame(pieces []Piece, seqLen int) Window {
	w := Window{
		IDs:    make([]int64, seqLen),
		Mask:   make([]int64, seqLen),
		Pieces: make([]Piece, seqLen),
	}
	special := Piece{Start: specialTokenSpan, End: specialTokenSpan}
	w.IDs[0], w.Mask[0], w.Pieces[0] = t.clsID, 1, special
	for i, p := range pieces {
		w.IDs[i+1], w.Mask[i+1], w.Pieces[i+1] = p.ID, 1, p
	}
	sep := len(pieces) + 1
	w.IDs[sep], w.Mask[sep], w.Pieces[sep] = t.sepID, 1, special
	for i := sep + 1; i < seqLen; i++ {
		w.IDs[i], w.Pieces[i] = t.padID, special
	}
	return w
}

func (t *WordPiece) wordPieces(word string, base int) []Piece {
	whole := []Piece{{ID: t.unkID, Start: base, End: base + len(word)}}
	if utf8.RuneCountInString(word) > maxCharsPerWord {
		return whole
	}
	token := word
	if t.lowerCase {
		token = strings.ToLower(word)
		if len(token) != len(word) {
			return whole
		}
	}
	if id, ok := t.vocab[token]; ok {
		return []Piece{{ID: id, Start: base, End: base + len(word)}}
	}

	var pieces []Piece
	start := 0
	for start < len(token) {
		end := len(token)
		found := false
		for end > start {
			sub := token[start:end]
			if start > 0 {
				sub = continuation + sub
			}
			if id, ok := t.vocab[sub]; ok {
				pieces = append(pieces, Piece{ID: id, Start: base + start, End: base + end, Continuation: start > 0})
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			return whole
		}
	}
	return pieces
}

type wordSpan struct{ start, end int }

// splitWords splits on whitespace and isolates each punctuation rune, as
// BERT's basic tokenizer does.
func splitWords(text string) []wordSpan {
	var spans []wordSpan
	start := -1
	flush := func(end int) {
		if start >= 0 {
			spans = append(spans, wordSpan{start, end})
			start = -1
		}
	}
	for idx, r := range text {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			flush(idx)
		case isPunct(r):
			flush(idx)
			spans = append(spans, wordSpan{idx, idx + utf8.RuneLen(r)})
		default:
			if start < 0 {
				start = idx
			}
		}
	}
	flush(len(text))
	return spans
}

func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}
