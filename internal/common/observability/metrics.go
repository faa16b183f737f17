// internal/common/observability/metrics.go
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Observability bundles the otel meter and tracer used by evaluation
// surfaces. The zero value is usable and records nothing.
type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	tracer        trace.Tracer
	tracing       *Tracing

	evaluations  otelmetric.Int64Counter
	evalDuration otelmetric.Float64Histogram
	jobCounter   otelmetric.Int64Counter
	jobDuration  otelmetric.Float64Histogram
}

// New registers an otel meter provider backed by the Prometheus exporter.
// A nil tracing leaves spans as no-ops.
func New(serviceName string, tracing *Tracing) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	o := &Observability{
		meterProvider: provider,
		meter:         meter,
		tracing:       tracing,
	}
	if tracing != nil {
		o.tracer = tracing.Tracer(serviceName)
	}

	if o.evaluations, err = meter.Int64Counter(
		"evaluations.completed",
		otelmetric.WithDescription("Number of completed evaluations"),
	); err != nil {
		return nil, err
	}
	if o.evalDuration, err = meter.Float64Histogram(
		"evaluations.duration",
		otelmetric.WithDescription("Evaluation pipeline duration"),
		otelmetric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if o.jobCounter, err = meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	); err != nil {
		return nil, err
	}
	if o.jobDuration, err = meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	return o, nil
}

// StartSpan opens a span named name. Without tracing configured it returns a
// non-recording span.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name)
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordEvaluation(ctx context.Context, surface string, partial bool, took time.Duration) {
	if o == nil || o.evaluations == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("surface", surface),
		attribute.Bool("partial", partial),
	)
	o.evaluations.Add(ctx, 1, attrs)
	o.evalDuration.Record(ctx, float64(took.Microseconds())/1000, attrs)
}

func (o *Observability) RecordJobProcessed(ctx context.Context, taskType, status string, took time.Duration) {
	if o == nil || o.jobCounter == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	)
	o.jobCounter.Add(ctx, 1, attrs)
	o.jobDuration.Record(ctx, float64(took.Milliseconds()), attrs)
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var firstErr error
	if o.meterProvider != nil {
		firstErr = o.meterProvider.Shutdown(ctx)
	}
	if o.tracing != nil {
		if err := o.tracing.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
