// internal/common/observability/metrics.go

package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Observability bundles the otel meter and tracer used around job handling, sweeps and
// provider calls. A zero value is safe to use and records nothing.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	jobCounter       otelmetric.Int64Counter
	jobDuration      otelmetric.Float64Histogram
	deliveryCounter  otelmetric.Int64Counter
	sweepSentCounter otelmetric.Int64Counter
}

// New registers the Prometheus exporter on the default registry, so it is called once per
// process. Spans are exported to Jaeger when jaegerEndpoint is set and kept in process
// otherwise.
func New(serviceName, jaegerEndpoint string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	var traceOpts []sdktrace.TracerProviderOption
	if jaegerEndpoint != "" {
		spans, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
		if err != nil {
			return nil, fmt.Errorf("jaeger exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(spans))
	}
	tracerProvider := sdktrace.NewTracerProvider(traceOpts...)
	otel.SetTracerProvider(tracerProvider)

	return newWithProviders(serviceName, provider, tracerProvider), nil
}

func newWithProviders(serviceName string, mp *metric.MeterProvider, tp *sdktrace.TracerProvider) *Observability {
	meter := mp.Meter(serviceName)

	jobCounter, _ := meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of document-written jobs processed"),
	)

	jobDuration, _ := meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)

	deliveryCounter, _ := meter.Int64Counter(
		"deliveries.attempted",
		otelmetric.WithDescription("Provider delivery attempts"),
	)

	sweepSentCounter, _ := meter.Int64Counter(
		"sweeps.notifications",
		otelmetric.WithDescription("Notifications sent by scheduled sweeps"),
	)

	return &Observability{
		meterProvider:    mp,
		tracerProvider:   tp,
		tracer:           tp.Tracer(serviceName),
		jobCounter:       jobCounter,
		jobDuration:      jobDuration,
		deliveryCounter:  deliveryCounter,
		sweepSentCounter: sweepSentCounter,
	}
}

// StartSpan starts a span named name. End must be called on the returned span.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name)
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordJobProcessed(ctx context.Context, taskType, status string) {
	if o != nil && o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("task_type", taskType),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string) {
	if o != nil && o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("task_type", taskType),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordDelivery(ctx context.Context, channel, outcome string) {
	if o != nil && o.deliveryCounter != nil {
		o.deliveryCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("outcome", outcome),
		))
	}
}

func (o *Observability) RecordSweep(ctx context.Context, sweep string, sent int) {
	if o != nil && o.sweepSentCounter != nil {
		o.sweepSentCounter.Add(ctx, int64(sent), otelmetric.WithAttributes(
			attribute.String("sweep", sweep),
		))
	}
}

func (o *Observability) Shutdown(ctx context.Context) {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
