// internal/common/observability/tracing.go
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracing owns the tracer provider exporting spans to Jaeger.
type Tracing struct {
	provider *sdktrace.TracerProvider
}

// NewTracing exports through a Jaeger collector endpoint such as
// http://jaeger:14268/api/traces.
func NewTracing(endpoint string, sampleRatio float64) (*Tracing, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
	if err != nil {
		return nil, fmt.Errorf("create jaeger exporter: %w", err)
	}
	return NewTracingWithExporter(exp, sampleRatio), nil
}

// NewTracingWithExporter registers a provider around any span exporter.
func NewTracingWithExporter(exp sdktrace.SpanExporter, sampleRatio float64) *Tracing {
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
	)
	otel.SetTracerProvider(provider)
	return &Tracing{provider: provider}
}

func (t *Tracing) Tracer(name string) trace.Tracer {
	return t.provider.Tracer(name)
}

// Flush exports every finished span still buffered.
func (t *Tracing) Flush(ctx context.Context) error {
	return t.provider.ForceFlush(ctx)
}

func (t *Tracing) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}
