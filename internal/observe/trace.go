package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// scope names every span vocalbooth emits.
const scope = "github.com/MrWong99/vocalbooth"

// Tracer is the vocalbooth tracer from whatever provider is currently global,
// so tests can swap providers with otel.SetTracerProvider.
func Tracer() trace.Tracer {
	return otel.Tracer(scope)
}

// StartSpan opens a control-plane span such as a websocket action or a
// session start. Pair it with [EndSpan]. The audio callback never calls it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// EndSpan closes span, marking it failed with err when err is non-nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID is the hex trace ID carried by ctx, or "" outside a trace.
// HTTP responses echo it in X-Correlation-ID.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns slog.Default tagged with the trace_id and span_id of ctx.
// Outside a trace it is slog.Default unchanged.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
