// internal/common/observability/metrics_test.go

package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestObservability_RecordsMetricsAndSpans(t *testing.T) {
	reader := metric.NewManualReader()
	spans := tracetest.NewSpanRecorder()

	obs := newWithProviders("test",
		metric.NewMeterProvider(metric.WithReader(reader)),
		sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
	)
	ctx := context.Background()

	_, span := obs.StartSpan(ctx, "sweep.inspection-reminder", attribute.String("sweep", "inspection-reminder"))
	span.End()

	obs.RecordJobProcessed(ctx, "offers.document.written", "completed")
	obs.RecordJobDuration(ctx, "offers.document.written", 12*time.Millisecond, "completed")
	obs.RecordDelivery(ctx, "push", "sent")
	obs.RecordSweep(ctx, "inspection-reminder", 3)

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "sweep.inspection-reminder", ended[0].Name())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := map[string]bool{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = true
	}
	for _, want := range []string{"jobs.processed", "jobs.duration", "deliveries.attempted", "sweeps.notifications"} {
		assert.True(t, names[want], want)
	}

	obs.Shutdown(ctx)
}

func TestObservability_NilIsSafe(t *testing.T) {
	var obs *Observability
	ctx, span := obs.StartSpan(context.Background(), "noop")
	span.End()
	obs.RecordJobProcessed(ctx, "t", "s")
	obs.RecordSweep(ctx, "s", 1)
	obs.Shutdown(ctx)
}

// New registers on the default Prometheus registry, so only this test calls it.
func TestNew_WithJaegerEndpoint(t *testing.T) {
	obs, err := New("ctp-notifications", "http://127.0.0.1:14268/api/traces")
	require.NoError(t, err)

	ctx, span := obs.StartSpan(context.Background(), "offers.document.written")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	obs.Shutdown(ctx)
}
