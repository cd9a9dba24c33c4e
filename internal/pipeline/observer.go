package pipeline

import (
	"context"
	"github.com/google/uuid"
	"log/slog"
	"time"
)

// StageEvent identifies a stage execution for observers.
type StageEvent struct {
	Stage     string
	SessionID uuid.UUID
	Index     int
	Total     int
	StartedAt time.Time
}

// Observer receives timing and telemetry callbacks. The returned contexts are used for the rest of the run or
// stage, which lets observers attach spans or log attributes.
type Observer interface {
	RunStarted(ctx context.Context, sessionID uuid.UUID, req InvestigationRequest) context.Context
	StageStarted(ctx context.Context, ev StageEvent) context.Context
	StageFinished(ctx context.Context, ev StageEvent, result StageResult)
	RunFinished(ctx context.Context, outcome Outcome)
}

// LogObserver logs stage timings and a summary of every run.
type LogObserver struct {
	logger *slog.Logger
}

func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) RunStarted(ctx context.Context, sessionID uuid.UUID, req InvestigationRequest) context.Context {
	o.logger.LogAttrs(ctx, slog.LevelInfo, "investigation started",
		slog.String("session_id", sessionID.String()),
		slog.String("language", string(req.Language)),
		slog.Int("text_length", len(req.RawText)),
		slog.String("submitted_at", FormatTime(req.SubmittedAt)))
	return ctx
}

func (o *LogObserver) StageStarted(ctx context.Context, ev StageEvent) context.Context {
	o.logger.LogAttrs(ctx, slog.LevelInfo, "stage started",
		slog.String("stage", ev.Stage),
		slog.Int("index", ev.Index),
		slog.Int("total", ev.Total))
	return ctx
}

func (o *LogObserver) StageFinished(ctx context.Context, ev StageEvent, result StageResult) {
	level := slog.LevelInfo
	if result.Status != StageSucceeded {
		level = slog.LevelError
	}
	attrs := []slog.Attr{
		slog.String("stage", ev.Stage),
		slog.String("status", string(result.Status)),
		slog.Int64("duration_ms", result.Duration.Milliseconds()),
		slog.Int("output_length", len(result.Output)),
	}
	if result.Reason != "" {
		attrs = append(attrs, slog.String("reason", result.Reason))
	}
	o.logger.LogAttrs(ctx, level, "stage finished", attrs...)
}

func (o *LogObserver) RunFinished(ctx context.Context, outcome Outcome) {
	level := slog.LevelInfo
	if outcome.Status != StatusCompleted {
		level = slog.LevelError
	}
	o.logger.LogAttrs(ctx, level, "investigation finished",
		slog.String("session_id", outcome.SessionID.String()),
		slog.String("status", string(outcome.Status)),
		slog.String("reason", outcome.Reason),
		slog.Int64("total_duration_ms", outcome.Duration.Milliseconds()),
		slog.Int("stage_count", len(outcome.Results)),
		slog.Int("report_length", len(outcome.Report)))
	for _, r := range outcome.Results {
		o.logger.LogAttrs(ctx, slog.LevelDebug, "stage timing",
			slog.String("stage", r.StageName),
			slog.Int64("duration_ms", r.Duration.Milliseconds()))
	}
}
