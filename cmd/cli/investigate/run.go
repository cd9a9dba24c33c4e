package investigate

import (
	"context"
	"github.com/myrjola/vera/internal/ai"
	"github.com/myrjola/vera/internal/config"
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/extract"
	"github.com/myrjola/vera/internal/pipeline"
	"github.com/myrjola/vera/internal/report"
	"github.com/myrjola/vera/internal/setup"
	"github.com/myrjola/vera/internal/stages"
	"io"
	"log/slog"
	"time"
)

// ErrIncomplete is returned when the pipeline stops before the report is written.
var ErrIncomplete = errors.NewSentinel("investigation did not complete")

// inputProcessor resolves URL inputs to the text of the page.
type inputProcessor interface {
	ProcessInput(ctx context.Context, raw string) (string, bool, error)
}

type runner struct {
	generator ai.Generator
	cfg       *config.Config
	extractor inputProcessor
	logger    *slog.Logger
	stdout    io.Writer
	stderr    io.Writer
}

type runOptions struct {
	language pipeline.Language
	pretty   bool
}

// run investigates input and prints the progress and the report. The outcome is returned also on failure.
func (r runner) run(ctx context.Context, input string, opts runOptions) (pipeline.Outcome, error) {
	text, fromURL, err := r.extractor.ProcessInput(ctx, input)
	if err != nil {
		var extractErr *extract.Error
		if errors.As(err, &extractErr) {
			return pipeline.Outcome{}, errors.New(extractErr.Message)
		}
		return pipeline.Outcome{}, errors.Wrap(err, "process input")
	}
	if fromURL {
		r.logger.LogAttrs(ctx, slog.LevelInfo, "extracted url content", slog.Int("chars", len(text)))
	}
	req, err := pipeline.NewInvestigationRequest(text, opts.language, time.Now())
	if err != nil {
		return pipeline.Outcome{}, errors.Wrap(err, "new investigation request")
	}

	pipelineStages := setup.Stages(r.cfg)
	printer, err := newProgress(r.stdout, r.stderr, len(pipelineStages), opts.pretty)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	orchestrator := setup.Orchestrator(r.generator, r.cfg, r.logger, pipeline.NewLogObserver(r.logger))

	var printErr error
	outcome, runErr := orchestrator.Run(ctx, req, pipelineStages, func(ev pipeline.Event) {
		if printErr == nil {
			printErr = printer.handle(ev)
		}
	})
	if printErr != nil {
		return outcome, printErr
	}

	scores := report.New(outcome.Report, outcome.StageOutput(stages.Scoring)).Scores
	if err = printer.summary(outcome, scores); err != nil {
		return outcome, err
	}
	if runErr != nil {
		return outcome, errors.Wrap(runErr, "run pipeline")
	}
	if outcome.Status != pipeline.StatusCompleted {
		return outcome, errors.Wrap(ErrIncomplete, "run pipeline", slog.String("status", string(outcome.Status)))
	}
	return outcome, nil
}
