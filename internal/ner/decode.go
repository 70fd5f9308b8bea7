package ner

import (
	"math"
	"strings"

	"github.com/privylens/privylens/internal/redaction"
)

// decodeWindow turns per-token logits into raw entity tokens. Outside tags
// are dropped, except for a continuation piece whose word head was tagged:
// it inherits the head's type so the word stays whole when stitched.
func decodeWindow(text string, w Window, logits []float32, labels []string) []redaction.RawEntityToken {
	n := len(labels)
	if n == 0 {
		return nil
	}
	var out []redaction.RawEntityToken
	headType := ""
	for i, p := range w.Pieces {
		if p.Start < 0 || (i+1)*n > len(logits) {
			continue
		}
		probs := softmax(logits[i*n : (i+1)*n])
		best := argmax(probs)
		tag := labels[best]
		score := float64(probs[best])

		if !p.Continuation {
			headType = ""
		}
		if isOutside(tag) {
			if !p.Continuation || headType == "" {
				continue
			}
			tag = "I-" + headType
		} else if !p.Continuation {
			_, headType = splitBIO(tag)
		}

		word := text[p.Start:p.End]
		if p.Continuation {
			word = continuation + word
		}
		out = append(out, redaction.RawEntityToken{Word: word, Entity: tag, Score: score})
	}
	return out
}

func isOutside(tag string) bool {
	tag = strings.TrimSpace(tag)
	return tag == "" || tag == "O"
}

func splitBIO(tag string) (string, string) {
	prefix, typ, ok := strings.Cut(tag, "-")
	if !ok {
		return "", tag
	}
	return prefix, typ
}

func argmax(v []float32) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxVal := logits[0]
	for _, v := range logits[1:] {
		maxVal = max(maxVal, v)
	}
	sum := 0.0
	out := make([]float32, len(logits))
	for i, v := range logits {
		e := math.Exp(float64(v - maxVal))
		out[i] = float32(e)
		sum += e
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
