package ner

import (
	"context"
	"fmt"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/privylens/privylens/internal/ortenv"
	"github.com/privylens/privylens/internal/redaction"
)

// ONNXRecognizer runs a BERT token classifier in-process.
type ONNXRecognizer struct {
	tokenizer *WordPiece
	labels    []string
	seqLen    int
	sessions  chan *session
	all       []*session
}

type session struct {
	session       *ort.AdvancedSession
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
}

// LoadONNX opens the bundle in dir. libHint locates the onnxruntime shared
// library when it is not installed system-wide.
func LoadONNX(dir, libHint string) (*ONNXRecognizer, error) {
	b, err := LoadBundle(dir)
	if err != nil {
		return nil, err
	}
	if err := ortenv.Init(libHint); err != nil {
		return nil, err
	}
	tok, err := LoadWordPiece(b.VocabPath(), b.LowerCase)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	r := &ONNXRecognizer{
		tokenizer: tok,
		labels:    b.Labels,
		seqLen:    b.MaxTokens,
		sessions:  make(chan *session, b.Sessions),
	}
	outName, _, err := ortenv.Output(b.ModelPath(), b.Output)
	if err != nil {
		return nil, fmt.Errorf("inspect ner model: %w", err)
	}
	for range b.Sessions {
		s, err := newSession(b, outName, len(r.labels))
		if err != nil {
			r.Close()
			return nil, err
		}
		r.all = append(r.all, s)
		r.sessions <- s
	}
	return r, nil
}

func newSession(b *Bundle, outName string, numLabels int) (*session, error) {
	opts, err := ortenv.SessionOptions(b.IntraThreads, b.InterThreads)
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()

	s := &session{}
	inputShape := ort.NewShape(1, int64(b.MaxTokens))
	if s.inputIDs, err = ort.NewEmptyTensor[int64](inputShape); err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	if s.attentionMask, err = ort.NewEmptyTensor[int64](inputShape); err != nil {
		s.destroy()
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	names := []string{"input_ids", "attention_mask"}
	values := []ort.Value{s.inputIDs, s.attentionMask}
	if b.UsesTokenTypes() {
		if s.tokenTypeIDs, err = ort.NewEmptyTensor[int64](inputShape); err != nil {
			s.destroy()
			return nil, fmt.Errorf("allocate token_type_ids tensor: %w", err)
		}
		names = append(names, "token_type_ids")
		values = append(values, s.tokenTypeIDs)
	}
	if s.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(b.MaxTokens), int64(numLabels))); err != nil {
		s.destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}
	s.session, err = ort.NewAdvancedSession(b.ModelPath(), names, []string{outName}, values, []ort.Value{s.output}, opts)
	if err != nil {
		s.destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return s, nil
}

func (s *session) destroy() {
	if s.session != nil {
		s.session.Destroy()
	}
	for _, t := range []*ort.Tensor[int64]{s.inputIDs, s.attentionMask, s.tokenTypeIDs} {
		if t != nil {
			t.Destroy()
		}
	}
	if s.output != nil {
		s.output.Destroy()
	}
}

// Recognize tags text window by window. It waits for a free session and
// stops between windows once ctx is done.
func (r *ONNXRecognizer) Recognize(ctx context.Context, text string) ([]redaction.RawEntityToken, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	var s *session
	select {
	case s = <-r.sessions:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { r.sessions <- s }()

	var out []redaction.RawEntityToken
	for _, w := range r.tokenizer.Windows(r.tokenizer.Tokenize(text), r.seqLen) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		copy(s.inputIDs.GetData(), w.IDs)
		copy(s.attentionMask.GetData(), w.Mask)
		if s.tokenTypeIDs != nil {
			clear(s.tokenTypeIDs.GetData())
		}
		if err := s.session.Run(); err != nil {
			return nil, fmt.Errorf("onnx run: %w", err)
		}
		out = append(out, decodeWindow(text, w, s.output.GetData(), r.labels)...)
	}
	return out, nil
}

// Close releases every session. It is safe to call once all Recognize
// calls have returned.
func (r *ONNXRecognizer) Close() error {
	if r == nil {
		return nil
	}
	for _, s := range r.all {
		s.destroy()
	}
	r.all = nil
	return nil
}
