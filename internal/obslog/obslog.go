// Package obslog centralizes the structured-logging and tracing wiring
// shared by eventloop, autobatch, store, and remotecache (SPEC_FULL.md
// §2.1, §3). It is internal: not part of the public API surface, mirroring
// how the teacher keeps cross-cutting helpers out of its public packages.
package obslog

import (
	"context"

	"github.com/joeycumines/logiface"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Bind tags every event a component logs with a "component" field, the
// same convention the teacher's bespoke logging.go uses for its Category
// field. A nil logger yields a nil result; callers must treat a nil
// *logiface.Logger[logiface.Event] as "logging disabled".
func Bind(logger *logiface.Logger[logiface.Event], component string) *logiface.Logger[logiface.Event] {
	if logger == nil {
		return nil
	}
	l := logger.Clone().Str("component", component).Logger()
	return l
}

// tracer is the module-wide OpenTelemetry tracer. otel.Tracer returns a
// safe no-op implementation until a real SDK/TracerProvider is registered
// by the host application, so this call is always cheap and correct
// (SPEC_FULL.md §3 domain stack).
var tracer = otel.Tracer("github.com/joeycumines/go-entitydb")

// StartSpan opens a span around an RPC-crossing operation. Callers must
// invoke the returned end func exactly once.
func StartSpan(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := tracer.Start(ctx, name)
	return ctx, span.End
}

// TraceIDs extracts the active trace/span IDs for inclusion in log fields,
// mirroring logiface-slog's own otel_example.go pattern.
func TraceIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
