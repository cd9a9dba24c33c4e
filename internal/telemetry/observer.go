package telemetry

import (
	"context"
	"github.com/google/uuid"
	"github.com/myrjola/vera/internal/pipeline"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/myrjola/vera/internal/pipeline"

// SpanObserver records one span per investigation with a child span per stage.
type SpanObserver struct {
	tracer trace.Tracer
}

// NewSpanObserver uses tp, or the global tracer provider when tp is nil.
func NewSpanObserver(tp trace.TracerProvider) *SpanObserver {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &SpanObserver{tracer: tp.Tracer(instrumentationName)}
}

func (o *SpanObserver) RunStarted(
	ctx context.Context,
	sessionID uuid.UUID,
	req pipeline.InvestigationRequest,
) context.Context {
	ctx, _ = o.tracer.Start(ctx, "investigation",
		trace.WithAttributes(
			attribute.String("vera.session_id", sessionID.String()),
			attribute.String("vera.language", string(req.Language)),
			attribute.Int("vera.text_length", len(req.RawText)),
		))
	return ctx
}

func (o *SpanObserver) StageStarted(ctx context.Context, ev pipeline.StageEvent) context.Context {
	ctx, _ = o.tracer.Start(ctx, "stage "+ev.Stage,
		trace.WithAttributes(
			attribute.String("vera.stage", ev.Stage),
			attribute.Int("vera.stage_index", ev.Index),
			attribute.Int("vera.stage_total", ev.Total),
		))
	return ctx
}

func (o *SpanObserver) StageFinished(ctx context.Context, _ pipeline.StageEvent, result pipeline.StageResult) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("vera.stage_status", string(result.Status)),
		attribute.Int("vera.output_length", len(result.Output)),
	)
	if result.Status != pipeline.StageSucceeded {
		span.SetStatus(codes.Error, result.Reason)
	}
	span.End()
}

func (o *SpanObserver) RunFinished(ctx context.Context, outcome pipeline.Outcome) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("vera.status", string(outcome.Status)),
		attribute.Int("vera.stage_count", len(outcome.Results)),
	)
	if outcome.Status != pipeline.StatusCompleted {
		span.SetStatus(codes.Error, outcome.Reason)
	}
	span.End()
}
