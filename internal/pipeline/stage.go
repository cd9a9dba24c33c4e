package pipeline

import (
	"github.com/myrjola/vera/internal/errors"
	"log/slog"
	"time"
)

var ErrInvalidPipeline = errors.NewSentinel("invalid pipeline")

// InputBuilder produces the user turn that starts a stage from the session built so far.
type InputBuilder func(session *SessionContext, stageName string) string

// Stage is an immutable configuration record of one analysis step.
type Stage struct {
	Name        string
	Instruction InstructionTemplate
	// Capabilities lists external tools the model may use, e.g. [ai.CapabilityWebSearch].
	Capabilities []string
	Input        InputBuilder
	// Streams forwards output increments to the caller while the stage runs.
	Streams bool
	// Timeout overrides RunConfiguration.StageTimeout when positive.
	Timeout time.Duration
	// MaxOutputTokens overrides RunConfiguration.MaxOutputTokens when positive.
	MaxOutputTokens int
}

// StageStatus is the terminal state of a stage.
type StageStatus string

const (
	StageSucceeded StageStatus = "succeeded"
	StageTimedOut  StageStatus = "timed_out"
	StageFailed    StageStatus = "failed"
)

// StageResult is recorded once per started stage and never modified afterwards.
type StageResult struct {
	StageName string        `json:"stage"`
	Output    string        `json:"output"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"durationNs"`
	Status    StageStatus   `json:"status"`
	// Reason describes why the stage did not succeed.
	Reason string `json:"reason,omitempty"`
}

// ValidateStages checks that stages form a runnable pipeline.
func ValidateStages(stages []Stage) error {
	if len(stages) == 0 {
		return errors.Wrap(ErrInvalidPipeline, "no stages")
	}
	seen := make(map[string]bool, len(stages))
	streaming := 0
	for i, s := range stages {
		if s.Name == "" {
			return errors.Wrap(ErrInvalidPipeline, "stage without name", slog.Int("index", i))
		}
		if seen[s.Name] {
			return errors.Wrap(ErrInvalidPipeline, "duplicate stage name", slog.String("stage", s.Name))
		}
		seen[s.Name] = true
		if s.Input == nil {
			return errors.Wrap(ErrInvalidPipeline, "stage without input builder", slog.String("stage", s.Name))
		}
		if _, err := ParseTemplate(s.Instruction.Text()); err != nil {
			return errors.Wrap(errors.Join(ErrInvalidPipeline, err), "parse instruction", slog.String("stage", s.Name))
		}
		if s.Streams {
			streaming++
		}
	}
	if streaming > 1 {
		return errors.Wrap(ErrInvalidPipeline, "more than one streaming stage", slog.Int("streaming", streaming))
	}
	return nil
}
