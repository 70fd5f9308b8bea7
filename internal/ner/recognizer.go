// Package ner provides the entity recognizers behind text redaction: an
// in-process ONNX token classifier, a hosted HTTP classifier, and a no-op
// for pattern-only deployments.
package ner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/privylens/privylens/internal/lazy"
	"github.com/privylens/privylens/internal/redaction"
)

// ErrModelUnavailable wraps failures to load a recognizer.
var ErrModelUnavailable = errors.New("ner model unavailable")

// Noop recognizes nothing.
type Noop struct{}

func (Noop) Recognize(context.Context, string) ([]redaction.RawEntityToken, error) {
	return nil, nil
}

// Lazy loads its recognizer on first use. Until a load succeeds each call
// retries it; callers see ErrModelUnavailable meanwhile.
type Lazy struct {
	cell *lazy.Cell[redaction.Recognizer]
}

// NewLazy wraps load.
func NewLazy(load func(context.Context) (redaction.Recognizer, error)) *Lazy {
	return &Lazy{cell: lazy.New(load)}
}

func (l *Lazy) Recognize(ctx context.Context, text string) ([]redaction.RawEntityToken, error) {
	r, err := l.cell.Get(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return r.Recognize(ctx, text)
}

// Warm loads the recognizer now.
func (l *Lazy) Warm(ctx context.Context) error {
	_, err := l.cell.Get(ctx)
	return err
}

// Close closes the loaded recognizer, if any.
func (l *Lazy) Close() error {
	r, ok := l.cell.Peek()
	if !ok {
		return nil
	}
	if c, ok := r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Options selects and configures a recognizer.
type Options struct {
	Backend  string
	ModelDir string
	ORTLib   string
	URL      string
	Token    string
	Timeout  time.Duration
}

// New builds the recognizer named by opts.Backend: "onnx", "http" or
// "none". The ONNX model is loaded lazily.
func New(opts Options) (redaction.Recognizer, error) {
	switch opts.Backend {
	case "", "none":
		return Noop{}, nil
	case "http":
		if opts.URL == "" {
			return nil, errors.New("ner: http backend requires a url")
		}
		return NewHTTP(opts.URL, opts.Token, opts.Timeout), nil
	case "onnx":
		if opts.ModelDir == "" {
			return nil, errors.New("ner: onnx backend requires a model dir")
		}
		return NewLazy(func(context.Context) (redaction.Recognizer, error) {
			return LoadONNX(opts.ModelDir, opts.ORTLib)
		}), nil
	}
	return nil, fmt.Errorf("ner: unknown backend %q", opts.Backend)
}
