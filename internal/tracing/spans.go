package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Pipeline span names.
const (
	SpanGenerate = "generate.run"
	SpanRegistry = "registry.load"
	SpanProject  = "project.load"
	SpanEntities = "entities.resolve"
	SpanPorts    = "ports.allocate"
	SpanCompose  = "compose.write"
	SpanEditor   = "editor.sync"
)

// Attribute keys.
const (
	AttrRunID     = "kgfleet.run_id"
	AttrProject   = "kgfleet.project"
	AttrService   = "kgfleet.service"
	AttrPort      = "kgfleet.port"
	AttrSelector  = "kgfleet.selector"
	AttrPath      = "kgfleet.path"
	AttrServices  = "kgfleet.services"
	AttrDryRun    = "kgfleet.dry_run"
	AttrErrorType = "error.type"
)

// Event names.
const (
	EventWarning = "warning"
)

// Start opens an internal span.
func Start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// End records err (if any) as the span outcome and ends the span.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Warn attaches a warning event to span.
func Warn(span trace.Span, msg string) {
	span.AddEvent(EventWarning, trace.WithAttributes(attribute.String("message", msg)))
}
