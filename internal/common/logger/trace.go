// internal/common/logger/trace.go

package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// WithTrace tags log with the trace and span ids of the span carried by ctx, so job and
// sweep log lines line up with their spans. log is returned unchanged when ctx has none.
func WithTrace(ctx context.Context, log Logger) Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return log
	}
	return log.WithFields(map[string]interface{}{
		"trace_id": sc.TraceID().String(),
		"span_id":  sc.SpanID().String(),
	})
}
