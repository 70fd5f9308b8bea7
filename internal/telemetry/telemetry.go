// Package telemetry wires OpenTelemetry tracing and metrics. A disabled
// provider is a no-op, so callers never branch on configuration.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/privylens/privylens/internal/redaction"
)

// Config controls telemetry setup.
type Config struct {
	Enabled  bool
	Exporter string // stdout | otlp-grpc | otlp-http
	Endpoint string
	Service  string
	Version  string
}

// Provider owns the tracer and meter providers and the instruments.
type Provider struct {
	Enabled bool
	tracer  trace.Tracer
	meter   metric.Meter

	requests       metric.Int64Counter
	requestLatency metric.Float64Histogram
	spans          metric.Int64Counter
	gateRejections metric.Int64Counter
	nerDegraded    metric.Int64Counter
	faces          metric.Int64Counter
	shutdown       []func(context.Context) error
}

// NewProvider configures exporters and registers the providers globally.
// When disabled it returns a no-op provider.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		p := &Provider{
			tracer: tracenoop.NewTracerProvider().Tracer(""),
			meter:  metricnoop.NewMeterProvider().Meter(""),
		}
		p.initInstruments()
		return p, nil
	}
	if cfg.Service == "" {
		cfg.Service = "privylens"
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.Service),
			attribute.String("service.version", cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating otel resource: %w", err)
	}

	spanExp, metricExp, err := exporters(ctx, cfg)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(spanExp),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	log.Info().Str("exporter", cfg.Exporter).Str("endpoint", cfg.Endpoint).Msg("telemetry_enabled")

	p := &Provider{
		Enabled:  true,
		tracer:   tp.Tracer("privylens"),
		meter:    mp.Meter("privylens"),
		shutdown: []func(context.Context) error{tp.Shutdown, mp.Shutdown},
	}
	p.initInstruments()
	return p, nil
}

func exporters(ctx context.Context, cfg Config) (sdktrace.SpanExporter, sdkmetric.Exporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "", "stdout":
		se, err := stdouttrace.New()
		if err != nil {
			return nil, nil, fmt.Errorf("creating trace exporter: %w", err)
		}
		me, err := stdoutmetric.New()
		if err != nil {
			return nil, nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		return se, me, nil
	case "otlp-grpc", "grpc":
		se, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, nil, fmt.Errorf("creating trace exporter: %w", err)
		}
		me, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithInsecure())
		if err != nil {
			return nil, nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		return se, me, nil
	case "otlp-http", "http":
		se, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, nil, fmt.Errorf("creating trace exporter: %w", err)
		}
		me, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithInsecure())
		if err != nil {
			return nil, nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		return se, me, nil
	}
	return nil, nil, fmt.Errorf("unknown telemetry exporter %q", cfg.Exporter)
}

func (p *Provider) initInstruments() {
	// Instrument errors are ignored; telemetry is best-effort.
	p.requests, _ = p.meter.Int64Counter("privylens_requests_total")
	p.requestLatency, _ = p.meter.Float64Histogram("privylens_request_duration_ms")
	p.spans, _ = p.meter.Int64Counter("privylens_spans_total")
	p.gateRejections, _ = p.meter.Int64Counter("privylens_gate_rejections_total")
	p.nerDegraded, _ = p.meter.Int64Counter("privylens_ner_degraded_total")
	p.faces, _ = p.meter.Int64Counter("privylens_faces_total")
}

// Tracer returns the provider's tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return tracenoop.NewTracerProvider().Tracer("")
	}
	return p.tracer
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, fn := range p.shutdown {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}

// RecordRequest counts an HTTP request by route and status.
func (p *Provider) RecordRequest(ctx context.Context, route string, status int, d time.Duration) {
	if p == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	)
	p.requests.Add(ctx, 1, attrs)
	p.requestLatency.Record(ctx, float64(d.Microseconds())/1000, attrs)
}

// RecordRedaction counts merged spans per label and degraded NER calls.
func (p *Provider) RecordRedaction(ctx context.Context, out redaction.Outcome) {
	if p == nil {
		return
	}
	for label, n := range out.Labels {
		p.spans.Add(ctx, int64(n), metric.WithAttributes(attribute.String("label", string(label))))
	}
	if out.NERDegraded {
		p.nerDegraded.Add(ctx, 1)
	}
}

// RecordGateRejection counts payloads refused by the masking gate.
func (p *Provider) RecordGateRejection(ctx context.Context, labels []redaction.Label) {
	if p == nil {
		return
	}
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = string(l)
	}
	p.gateRejections.Add(ctx, 1, metric.WithAttributes(attribute.StringSlice("labels", names)))
}

// RecordFaces counts pixelated faces.
func (p *Provider) RecordFaces(ctx context.Context, n int, degraded bool) {
	if p == nil {
		return
	}
	p.faces.Add(ctx, int64(n), metric.WithAttributes(attribute.Bool("detector.degraded", degraded)))
}
