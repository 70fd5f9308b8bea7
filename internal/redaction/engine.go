package redaction

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/privylens/privylens/internal/redaction")

// DefaultNERTimeout bounds a single recognizer call.
const DefaultNERTimeout = 5 * time.Second

// Recognizer is a named-entity model that tags tokens of a text.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]RawEntityToken, error)
}

// Outcome describes how a text was redacted.
type Outcome struct {
	PatternSpans int
	EntitySpans  int
	Labels       map[Label]int
	NERDegraded  bool
	NERError     error
}

// Engine combines pattern matching with entity recognition.
type Engine struct {
	recognizer Recognizer
	nerTimeout time.Duration
	aggregate  AggregateOptions
}

type EngineOption func(*Engine)

func WithNERTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.nerTimeout = d
		}
	}
}

func WithAggregateOptions(opts AggregateOptions) EngineOption {
	return func(e *Engine) { e.aggregate = opts }
}

// NewEngine returns an engine using recognizer for entity spans. A nil
// recognizer disables entity recognition.
func NewEngine(recognizer Recognizer, opts ...EngineOption) *Engine {
	e := &Engine{recognizer: recognizer, nerTimeout: DefaultNERTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RedactText masks the pattern categories enabled by policy plus every
// identity entity the recognizer finds. Recognizer failures and timeouts
// degrade to pattern-only redaction and are reported in the Outcome.
func (e *Engine) RedactText(ctx context.Context, text string, policy Policy) (Result, Outcome) {
	ctx, span := tracer.Start(ctx, "redaction.redact_text", trace.WithAttributes(
		attribute.Int("text.bytes", len(text)),
	))
	defer span.End()

	out := Outcome{Labels: make(map[Label]int)}
	spans := Match(text, policy.PatternLabels()...)
	out.PatternSpans = len(spans)

	if text != "" && e.recognizer != nil {
		entitySpans, err := e.entitySpans(ctx, text)
		if err != nil {
			out.NERDegraded = true
			out.NERError = err
			span.RecordError(err)
			log.Warn().Err(err).Msg("entity recognition unavailable; using pattern spans only")
		}
		out.EntitySpans = len(entitySpans)
		spans = append(spans, entitySpans...)
	}

	res := Merge(text, spans)
	for _, s := range res.Spans {
		out.Labels[s.Label]++
	}
	span.SetAttributes(
		attribute.Int("spans.pattern", out.PatternSpans),
		attribute.Int("spans.entity", out.EntitySpans),
		attribute.Int("spans.merged", len(res.Spans)),
		attribute.Bool("ner.degraded", out.NERDegraded),
	)
	return res, out
}

func (e *Engine) entitySpans(ctx context.Context, text string) ([]Span, error) {
	ctx, cancel := context.WithTimeout(ctx, e.nerTimeout)
	defer cancel()
	tokens, err := e.recognizer.Recognize(ctx, text)
	if err != nil {
		return nil, err
	}
	return EntitySpans(Aggregate(text, tokens), e.aggregate), nil
}
