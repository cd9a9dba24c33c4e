package pipeline

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"github.com/myrjola/vera/internal/ai"
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/logging"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var (
	ErrStageTimeout = errors.NewSentinel("stage timed out")
	ErrStageFailure = errors.NewSentinel("stage failed")
	ErrCancelled    = errors.NewSentinel("investigation cancelled")
)

// eventBuffer is the capacity of Handle.Events.
const eventBuffer = 64

// Orchestrator runs stages one at a time on a shared session. It holds no per-run state and can serve
// concurrent runs.
type Orchestrator struct {
	generator ai.Generator
	cfg       RunConfiguration
	observers []Observer
	logger    *slog.Logger
}

type Option func(*Orchestrator)

// WithObserver adds an observer notified about run and stage boundaries.
func WithObserver(o Observer) Option {
	return func(orc *Orchestrator) {
		orc.observers = append(orc.observers, o)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(orc *Orchestrator) {
		orc.logger = logger
	}
}

func New(generator ai.Generator, cfg RunConfiguration, opts ...Option) *Orchestrator {
	orc := &Orchestrator{
		generator: generator,
		cfg:       cfg.withDefaults(),
		observers: nil,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(orc)
	}
	orc.logger = orc.logger.With("source", "Orchestrator")
	return orc
}

// Run executes stages in order on a fresh session and blocks until the run ends. emit receives the events of
// the run in order and may be nil.
//
// The returned error wraps ErrStageTimeout, ErrStageFailure, ErrCancelled or ErrInvalidPipeline. The outcome
// is populated in every case.
func (o *Orchestrator) Run(ctx context.Context, req InvestigationRequest, stages []Stage, emit func(Event)) (Outcome, error) {
	return o.run(ctx, NewSessionContext(req), stages, emit)
}

func (o *Orchestrator) run(ctx context.Context, session *SessionContext, stages []Stage, emit func(Event)) (Outcome, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	runStart := time.Now()
	outcome := Outcome{
		SessionID: session.ID(),
		Status:    StatusCompleted,
		Reason:    "",
		Results:   make([]StageResult, 0, len(stages)),
		Report:    "",
		Duration:  0,
		Session:   session,
	}
	finish := func(err error) (Outcome, error) {
		outcome.Duration = time.Since(runStart)
		for _, obs := range o.observers {
			obs.RunFinished(ctx, outcome)
		}
		final := outcome
		emit(Event{Kind: EventFinished, Outcome: &final}) //nolint:exhaustruct // finished carries the outcome only
		return outcome, err
	}

	ctx = logging.WithAttrs(ctx, slog.String("session_id", session.ID().String()))
	for _, obs := range o.observers {
		ctx = obs.RunStarted(ctx, session.ID(), session.Request())
	}

	if err := ValidateStages(stages); err != nil {
		outcome.Status = StatusFailed
		outcome.Reason = err.Error()
		return finish(errors.Wrap(err, "validate stages"))
	}

	for i, stage := range stages {
		if ctx.Err() != nil {
			outcome.Status = StatusCancelled
			outcome.Reason = fmt.Sprintf("investigation cancelled before stage %q", stage.Name)
			return finish(errors.Wrap(errors.Join(ErrCancelled, ctx.Err()), "run stages"))
		}

		result, output, err := o.runStage(ctx, session, stage, i, len(stages), emit)
		outcome.Results = append(outcome.Results, result)
		if err != nil {
			switch {
			case errors.Is(err, ErrCancelled):
				outcome.Status = StatusCancelled
			case errors.Is(err, ErrStageTimeout):
				outcome.Status = StatusTimedOut
			default:
				outcome.Status = StatusFailed
			}
			outcome.Reason = result.Reason
			return finish(err)
		}
		if stage.Streams || (outcome.Report == "" && i == len(stages)-1) {
			outcome.Report = output
		}
	}
	return finish(nil)
}

// runStage executes a single stage. The session gets the stage input and output turns only on success.
func (o *Orchestrator) runStage(
	ctx context.Context,
	session *SessionContext,
	stage Stage,
	index int,
	total int,
	emit func(Event),
) (StageResult, string, error) {
	startedAt := o.cfg.Now().UTC()
	wallStart := time.Now()
	ev := StageEvent{
		Stage:     stage.Name,
		SessionID: session.ID(),
		Index:     index,
		Total:     total,
		StartedAt: startedAt,
	}
	ctx = logging.WithAttrs(ctx, slog.String("stage", stage.Name))
	for _, obs := range o.observers {
		ctx = obs.StageStarted(ctx, ev)
	}
	emit(Event{Kind: EventStageStarted, Stage: stage.Name, Index: index, StartedAt: startedAt}) //nolint:exhaustruct // stage start

	input := stage.Input(session, stage.Name)
	req := ai.Request{
		Stage:           stage.Name,
		Instruction:     stage.Instruction.Render(TemplateValues{CurrentTime: startedAt, Language: session.Request().Language}),
		Messages:        session.RenderForStage(input, o.cfg.Context),
		Capabilities:    stage.Capabilities,
		MaxOutputTokens: o.cfg.MaxOutputTokens,
	}
	if stage.MaxOutputTokens > 0 {
		req.MaxOutputTokens = stage.MaxOutputTokens
	}
	timeout := o.cfg.StageTimeout
	if stage.Timeout > 0 {
		timeout = stage.Timeout
	}

	var stream *appendOnlyStream
	var onDelta ai.DeltaFunc
	if stage.Streams {
		stream = &appendOnlyStream{stage: stage.Name, index: index, emit: emit} //nolint:exhaustruct // zero values are fine
		onDelta = stream.write
	}

	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	resp, err := o.generator.Generate(stageCtx, req, onDelta)
	stageErr := stageCtx.Err()
	cancel()

	result := StageResult{
		StageName: stage.Name,
		Output:    "",
		StartedAt: startedAt,
		Duration:  time.Since(wallStart),
		Status:    StageSucceeded,
		Reason:    "",
	}
	stageAttr := slog.String("stage", stage.Name)
	switch {
	case err == nil:
		result.Output = resp.Text
		if stream != nil {
			result.Output = stream.complete(ctx, o.logger, resp.Text)
		}
	case ctx.Err() != nil:
		result.Status = StageFailed
		result.Reason = fmt.Sprintf("investigation cancelled during stage %q", stage.Name)
		err = errors.Wrap(errors.Join(ErrCancelled, ctx.Err()), "run stage", stageAttr)
	case errors.Is(stageErr, context.DeadlineExceeded):
		result.Status = StageTimedOut
		result.Reason = fmt.Sprintf("stage %q timed out after %s", stage.Name, timeout)
		err = errors.Wrap(ErrStageTimeout, "run stage", stageAttr, slog.Duration("timeout", timeout))
	default:
		result.Status = StageFailed
		result.Reason = fmt.Sprintf("stage %q failed: %v", stage.Name, err)
		err = errors.Wrap(errors.Join(ErrStageFailure, err), "run stage", stageAttr)
	}

	if result.Status == StageSucceeded {
		session.AppendTurn(ai.RoleUser, stage.Name, input)
		session.AppendTurn(ai.RoleModel, stage.Name, withSources(result.Output, resp.Citations))
	}
	for _, obs := range o.observers {
		obs.StageFinished(ctx, ev, result)
	}
	finished := result
	emit(Event{Kind: EventStageFinished, Stage: stage.Name, Index: index, Result: &finished}) //nolint:exhaustruct // stage end
	return result, result.Output, err
}

// withSources appends the sources reported by the backend, such as search grounding URLs, to the model turn so
// that later stages can cite them. The stage output itself is unchanged.
func withSources(text string, citations []string) string {
	if len(citations) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\nSources:")
	for i, c := range citations {
		fmt.Fprintf(&b, "\n[%d] %s", i+1, c)
	}
	return b.String()
}

// appendOnlyStream forwards generator deltas as EventDelta and guarantees that the final text extends what
// the caller has already seen.
type appendOnlyStream struct {
	stage string
	index int
	emit  func(Event)
	sent  strings.Builder
}

func (s *appendOnlyStream) write(delta string) error {
	if delta == "" {
		return nil
	}
	s.sent.WriteString(delta)
	s.emit(Event{Kind: EventDelta, Stage: s.stage, Index: s.index, Text: delta}) //nolint:exhaustruct // delta
	return nil
}

// complete emits the part of final that was not streamed followed by EventStreamCompleted. When final does not
// extend the streamed text, the streamed text wins.
func (s *appendOnlyStream) complete(ctx context.Context, logger *slog.Logger, final string) string {
	sent := s.sent.String()
	switch {
	case strings.HasPrefix(final, sent):
		_ = s.write(final[len(sent):])
	default:
		logger.LogAttrs(ctx, slog.LevelWarn, "final text does not extend streamed text",
			slog.String("stage", s.stage),
			slog.Int("streamed_length", len(sent)),
			slog.Int("final_length", len(final)))
	}
	text := s.sent.String()
	s.emit(Event{Kind: EventStreamCompleted, Stage: s.stage, Index: s.index, Text: text}) //nolint:exhaustruct // completion
	return text
}

// Handle controls a run started with Start.
type Handle struct {
	sessionID uuid.UUID
	events    chan Event
	cancel    context.CancelFunc
	done      chan struct{}

	mu      sync.Mutex
	outcome Outcome
	err     error
}

// Start runs stages in a new goroutine. The events of the run are delivered on Handle.Events, which is closed
// after EventFinished. Events that cannot be delivered after the run is cancelled are dropped.
func (o *Orchestrator) Start(ctx context.Context, req InvestigationRequest, stages []Stage) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	session := NewSessionContext(req)
	h := &Handle{ //nolint:exhaustruct // outcome is set when the run ends
		sessionID: session.ID(),
		events:    make(chan Event, eventBuffer),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		defer cancel()
		send := func(e Event) {
			select {
			case h.events <- e:
			case <-ctx.Done():
				select {
				case h.events <- e:
				default:
				}
			}
		}
		outcome, err := o.run(ctx, session, stages, send)
		h.mu.Lock()
		h.outcome, h.err = outcome, err
		h.mu.Unlock()
		close(h.events)
	}()
	return h
}

func (h *Handle) SessionID() uuid.UUID {
	return h.sessionID
}

func (h *Handle) Events() <-chan Event {
	return h.events
}

// Cancel aborts the run, which then finishes with StatusCancelled.
func (h *Handle) Cancel() {
	h.cancel()
}

// Wait blocks until the run ends. Events must be drained concurrently or the run blocks once the buffer is
// full.
func (h *Handle) Wait() (Outcome, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome, h.err
}
