// Package investigation runs submitted texts through the pipeline in the background and persists the outcome.
package investigation

import (
	"context"
	"github.com/google/uuid"
	"github.com/myrjola/vera/internal/broker"
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/logging"
	"github.com/myrjola/vera/internal/models"
	"github.com/myrjola/vera/internal/pipeline"
	"github.com/myrjola/vera/internal/report"
	"github.com/myrjola/vera/internal/repositories"
	"github.com/myrjola/vera/internal/stages"
	"log/slog"
	"sync"
	"time"
)

// forwardBuffer holds the events of a run until the SSE consumer reads them. When a consumer falls further
// behind, its channel is closed without a finished event. It then waits for the run to end and reads the rest
// from the store.
const forwardBuffer = 1024

// Extractor turns URL input into text.
type Extractor interface {
	ProcessInput(ctx context.Context, raw string) (string, bool, error)
}

type Options struct {
	Extractor    Extractor
	Orchestrator *pipeline.Orchestrator
	Stages       []pipeline.Stage
	Repository   *repositories.InvestigationRepository
	Broker       *broker.ChannelBroker[uuid.UUID, pipeline.Event]
	Logger       *slog.Logger
	Now          func() time.Time
}

// Service accepts investigations and runs them independently of the request that submitted them.
type Service struct {
	extractor    Extractor
	orchestrator *pipeline.Orchestrator
	stages       []pipeline.Stage
	repo         *repositories.InvestigationRepository
	broker       *broker.ChannelBroker[uuid.UUID, pipeline.Event]
	logger       *slog.Logger
	now          func() time.Time

	ctx    context.Context //nolint:containedctx // runs outlive requests and stop on Shutdown
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(opts Options) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		extractor:    opts.Extractor,
		orchestrator: opts.Orchestrator,
		stages:       opts.Stages,
		repo:         opts.Repository,
		broker:       opts.Broker,
		logger:       opts.Logger,
		now:          now,
		ctx:          ctx,
		cancel:       cancel,
		wg:           sync.WaitGroup{},
	}
}

// Submission is an investigation request from a visitor.
type Submission struct {
	Input        string
	Language     pipeline.Language
	VisitorToken string
}

// Submit extracts URL content, persists the investigation and starts the pipeline. Extraction failures are
// returned as *extract.Error and empty input as pipeline.ErrEmptyInput; in both cases nothing is started.
func (s *Service) Submit(ctx context.Context, sub Submission) (*models.Investigation, error) {
	text, fromURL, err := s.extractor.ProcessInput(ctx, sub.Input)
	if err != nil {
		return nil, errors.Wrap(err, "process input")
	}
	req, err := pipeline.NewInvestigationRequest(text, sub.Language, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "new investigation request")
	}

	handle := s.orchestrator.Start(s.ctx, req, s.stages)
	inv := &models.Investigation{ //nolint:exhaustruct // the outcome is filled by Finish
		ID:           handle.SessionID(),
		VisitorToken: sub.VisitorToken,
		RawText:      sub.Input,
		InputText:    text,
		Language:     string(req.Language),
		SubmittedAt:  req.SubmittedAt,
	}
	if fromURL {
		inv.SourceURL = sub.Input
	}
	if err = s.repo.Create(ctx, inv); err != nil {
		handle.Cancel()
		go drain(handle)
		return nil, errors.Wrap(err, "create investigation")
	}

	out := make(chan pipeline.Event, forwardBuffer)
	s.broker.Publish(inv.ID, out)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.consume(handle, inv.ID, out)
	}()
	return inv, nil
}

// Subscribe returns the live events of a running investigation. It returns nil when the investigation is not
// running or another consumer already streams it, after waiting for that run to finish or ctx to be done.
func (s *Service) Subscribe(ctx context.Context, id uuid.UUID) <-chan pipeline.Event {
	events, ok := s.broker.Subscribe(ctx, id)
	if !ok {
		return nil
	}
	return events
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Investigation, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get investigation")
	}
	return inv, nil
}

func (s *Service) List(ctx context.Context, visitorToken string, limit int) ([]models.Investigation, error) {
	list, err := s.repo.List(ctx, visitorToken, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list investigations")
	}
	return list, nil
}

// Shutdown cancels the running investigations and waits until their outcomes are persisted.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for investigations")
	}
}

// consume persists stage results as they finish and forwards the events to the subscriber. The finished event
// is forwarded only after the outcome is stored.
func (s *Service) consume(handle *pipeline.Handle, id uuid.UUID, out chan<- pipeline.Event) {
	ctx := logging.WithAttrs(context.WithoutCancel(s.ctx), slog.String("session_id", id.String()))
	fw := &forwarder{out: out, closed: false}
	defer func() {
		fw.close()
		s.broker.Unpublish(id)
	}()

	var finished *pipeline.Event
	for ev := range handle.Events() {
		switch ev.Kind {
		case pipeline.EventStageFinished:
			if err := s.repo.RecordStage(ctx, id, stageResultModel(ev.Index, *ev.Result)); err != nil {
				s.logger.LogAttrs(ctx, slog.LevelError, "failed to record stage", errors.SlogError(err))
			}
		case pipeline.EventFinished:
			finished = &ev
			continue
		case pipeline.EventStageStarted, pipeline.EventDelta, pipeline.EventStreamCompleted:
		}
		if !fw.send(ev) {
			s.logger.LogAttrs(ctx, slog.LevelDebug, "event consumer fell behind", slog.String("kind", string(ev.Kind)))
		}
	}

	outcome, runErr := handle.Wait()
	rep := report.New(outcome.Report, outcome.StageOutput(stages.Scoring))
	if outcome.Status == pipeline.StatusCompleted && !rep.Scores.Complete() {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "scores missing from report",
			slog.Any("missing", rep.Scores.Missing()))
	}
	if runErr != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "investigation did not complete", errors.SlogError(runErr))
	}

	completion := repositories.Completion{
		Status:              string(outcome.Status),
		Reason:              outcome.Reason,
		Report:              outcome.Report,
		DisinformationScore: score(rep.Scores.Disinformation),
		ManipulationScore:   score(rep.Scores.Manipulation),
		ConfidenceScore:     score(rep.Scores.Confidence),
		FinishedAt:          s.now(),
		Duration:            outcome.Duration,
		Turns:               turnModels(outcome.Session),
	}
	if err := s.repo.Finish(ctx, id, completion); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to finish investigation", errors.SlogError(err))
	}
	if finished != nil {
		fw.send(*finished)
	}
}

// forwarder passes events to the consumer without blocking the run. The first event that does not fit closes
// the channel, so the consumer never sees a gap in the deltas.
type forwarder struct {
	out    chan<- pipeline.Event
	closed bool
}

// send reports whether ev was delivered.
func (f *forwarder) send(ev pipeline.Event) bool {
	if f.closed {
		return false
	}
	select {
	case f.out <- ev:
		return true
	default:
		f.close()
		return false
	}
}

func (f *forwarder) close() {
	if !f.closed {
		close(f.out)
		f.closed = true
	}
}

func drain(handle *pipeline.Handle) {
	for range handle.Events() { //nolint:revive // discard
	}
}

func stageResultModel(position int, r pipeline.StageResult) models.StageResult {
	return models.StageResult{
		Position:   position,
		Stage:      r.StageName,
		Status:     string(r.Status),
		Output:     r.Output,
		Reason:     r.Reason,
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
	}
}

func turnModels(session *pipeline.SessionContext) []models.Turn {
	if session == nil {
		return nil
	}
	turns := session.Turns()
	out := make([]models.Turn, 0, len(turns))
	for i, t := range turns {
		out = append(out, models.Turn{Position: i, Role: string(t.Role), Stage: t.Stage, Text: t.Text})
	}
	return out
}

func score(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
