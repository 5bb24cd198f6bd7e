// Package tracing puts every keyload request in an OpenTelemetry client span,
// exported over OTLP, and carries the span's W3C trace context to the target.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mati/keyload/internal/config"
)

const (
	instrumentationName = "github.com/mati/keyload"
	defaultServiceName  = "keyload"
)

// RunInfo identifies the load test whose requests are traced. It is attached to
// the exporter resource, so every span of a run can be found by its run id.
type RunInfo struct {
	ID      string
	Target  string
	Profile string
	Rate    float64
}

func (r RunInfo) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("keyload.run_id", r.ID),
		attribute.String("keyload.target", r.Target),
		attribute.Float64("keyload.rate", r.Rate),
	}
	if r.Profile != "" {
		attrs = append(attrs, attribute.String("keyload.profile", r.Profile))
	}
	return attrs
}

// Provider hands out request spans for one run. A nil Provider, or one built
// without an endpoint, records nothing and never touches request headers.
type Provider struct {
	tp         *sdktrace.TracerProvider
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	propagate  bool
}

// Init builds the Provider for a run, exporting over OTLP gRPC or HTTP to the
// configured endpoint (or OTEL_EXPORTER_OTLP_ENDPOINT).
func Init(ctx context.Context, cfg config.TracingConfig, run RunInfo) (*Provider, error) {
	if !cfg.Enabled() {
		return &Provider{}, nil
	}

	exporter, err := newExporter(ctx, cfg, cfg.OTLPEndpoint())
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}
	p, err := NewProvider(ctx, exporter, cfg, run)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, err
	}
	return p, nil
}

// NewProvider wraps exporter in a batching TracerProvider whose resource names
// the service and the run.
func NewProvider(ctx context.Context, exporter sdktrace.SpanExporter, cfg config.TracingConfig, run RunInfo) (*Provider, error) {
	sampler, err := newSampler(cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName(cfg))),
		resource.WithAttributes(run.attributes()...),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	propagate := true
	if cfg.Propagate != nil {
		propagate = *cfg.Propagate
	}
	return &Provider{
		tp:         tp,
		tracer:     tp.Tracer(instrumentationName),
		propagator: propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
		propagate:  propagate,
	}, nil
}

func serviceName(cfg config.TracingConfig) string {
	if cfg.ServiceName != "" {
		return cfg.ServiceName
	}
	if env := os.Getenv("OTEL_SERVICE_NAME"); env != "" {
		return env
	}
	return defaultServiceName
}

// newSampler maps the configured fraction of traced iterations to a sampler.
func newSampler(rate float64) (sdktrace.Sampler, error) {
	switch {
	case rate < 0 || rate > 1:
		return nil, fmt.Errorf("tracing sample rate must be between 0.0 and 1.0, got %g", rate)
	case rate == 0:
		return sdktrace.NeverSample(), nil
	case rate == 1:
		return sdktrace.AlwaysSample(), nil
	default:
		return sdktrace.TraceIDRatioBased(rate), nil
	}
}

// activeTracer returns the run's tracer, or a no-op tracer when tracing is off.
func (p *Provider) activeTracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return p.tracer
}

// propagates reports whether requests carry a traceparent header.
func (p *Provider) propagates() bool {
	return p != nil && p.tp != nil && p.propagate
}

// Shutdown flushes the spans still batched for export.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

func newExporter(ctx context.Context, cfg config.TracingConfig, endpoint string) (sdktrace.SpanExporter, error) {
	switch protocol := strings.ToLower(cfg.Protocol); protocol {
	case "", "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("tracing protocol %q is not supported (grpc or http)", protocol)
	}
}
