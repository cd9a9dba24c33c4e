package investigation_test

import (
	"context"
	"github.com/google/uuid"
	"github.com/myrjola/vera/internal/broker"
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/extract"
	"github.com/myrjola/vera/internal/investigation"
	"github.com/myrjola/vera/internal/models"
	"github.com/myrjola/vera/internal/pipeline"
	"github.com/myrjola/vera/internal/repositories"
	"github.com/myrjola/vera/internal/sqlite"
	"github.com/myrjola/vera/internal/stages"
	"github.com/myrjola/vera/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"
)

type stubExtractor struct {
	err error
}

func (s stubExtractor) ProcessInput(_ context.Context, raw string) (string, bool, error) {
	if s.err != nil {
		return "", false, s.err
	}
	if strings.HasPrefix(raw, "https://") {
		return "[Content extracted from: " + raw + "]\n\nThe cube was invented in 1974.", true, nil
	}
	return strings.TrimSpace(raw), false, nil
}

func newService(t *testing.T, gen *testhelpers.ScriptedGenerator, ex investigation.Extractor) *investigation.Service {
	t.Helper()
	logger := testhelpers.NewLogger(io.Discard)
	db, err := sqlite.NewDatabase(t.Context(), ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	br := broker.NewChannelBroker[uuid.UUID, pipeline.Event]()
	brokerCtx, stopBroker := context.WithCancel(context.Background())
	go br.Run(brokerCtx)
	t.Cleanup(stopBroker)

	orc := pipeline.New(gen, pipeline.RunConfiguration{
		StageTimeout:    time.Second,
		Context:         pipeline.TruncationPolicy{MaxChars: 0},
		MaxOutputTokens: 0,
		Now:             time.Now,
	}, pipeline.WithLogger(logger))
	svc := investigation.NewService(investigation.Options{
		Extractor:    ex,
		Orchestrator: orc,
		Stages:       stages.Default(stages.DefaultConfig()),
		Repository:   repositories.NewInvestigationRepository(db, logger),
		Broker:       br,
		Logger:       logger,
		Now:          time.Now,
	})
	t.Cleanup(func() { require.NoError(t, svc.Shutdown(context.Background())) })
	return svc
}

func drainEvents(t *testing.T, events <-chan pipeline.Event) []pipeline.Event {
	t.Helper()
	require.NotNil(t, events)
	var out []pipeline.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("investigation did not finish")
		}
	}
}

func TestService_Submit(t *testing.T) {
	gen := testhelpers.NewScriptedGenerator(map[string]testhelpers.Scripted{
		// Keeps the run alive until the test subscribes.
		stages.Researcher: {Deltas: nil, Text: "facts", Err: nil, Delay: 200 * time.Millisecond},
		stages.Scoring: {
			Deltas: nil,
			Text:   "Disinformation Level: 2/10\nManipulation Level: 3/10\nAnalysis Confidence: 8/10",
			Err:    nil,
			Delay:  0,
		},
		stages.Reporter: {
			Deltas: []string{"# VERA Analysis Report\n", "## 7. Conclusion\nAccurate."},
			Text:   "",
			Err:    nil,
			Delay:  10 * time.Millisecond,
		},
	})
	svc := newService(t, gen, stubExtractor{err: nil})
	ctx := t.Context()

	inv, err := svc.Submit(ctx, investigation.Submission{
		Input:        "https://example.com/cube",
		Language:     pipeline.LanguageEnglish,
		VisitorToken: "visitor-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/cube", inv.SourceURL)

	events := drainEvents(t, svc.Subscribe(t.Context(), inv.ID))
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, pipeline.EventFinished, last.Kind)
	assert.Equal(t, pipeline.StatusCompleted, last.Outcome.Status)

	var streamed strings.Builder
	for _, ev := range events {
		if ev.Kind == pipeline.EventDelta {
			streamed.WriteString(ev.Text)
		}
	}
	assert.Equal(t, "# VERA Analysis Report\n## 7. Conclusion\nAccurate.", streamed.String())

	stored, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", stored.Status)
	assert.True(t, strings.HasPrefix(stored.InputText, "[Content extracted from: https://example.com/cube]"))
	require.Len(t, stored.Stages, len(stages.Names))
	for i, name := range stages.Names {
		assert.Equal(t, name, stored.Stages[i].Stage)
	}
	require.NotNil(t, stored.DisinformationScore)
	assert.Equal(t, 2, *stored.DisinformationScore)
	assert.Equal(t, 3, *stored.ManipulationScore)
	assert.Equal(t, 8, *stored.ConfidenceScore)
	assert.Len(t, stored.Turns, 2*len(stages.Names))
	assert.Contains(t, stored.Report, "## 7. Conclusion")

	// The run is over, so later subscribers read the store.
	assert.Nil(t, svc.Subscribe(t.Context(), inv.ID))

	list, err := svc.List(ctx, "visitor-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, inv.ID, list[0].ID)
}

func TestService_SubmitTimeout(t *testing.T) {
	gen := testhelpers.NewScriptedGenerator(map[string]testhelpers.Scripted{
		stages.Critic: {Deltas: nil, Text: "", Err: nil, Delay: time.Minute},
	})
	svc := newService(t, gen, stubExtractor{err: nil})

	inv, err := svc.Submit(t.Context(), investigation.Submission{
		Input:        "Claim to check.",
		Language:     pipeline.LanguagePolish,
		VisitorToken: "",
	})
	require.NoError(t, err)
	drainEvents(t, svc.Subscribe(t.Context(), inv.ID))

	stored, err := svc.Get(t.Context(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "timed_out", stored.Status)
	assert.Equal(t, `stage "critic" timed out after 1s`, stored.Reason)
	assert.Equal(t, "pl", stored.Language)
	require.Len(t, stored.Stages, 4)
	assert.Equal(t, "timed_out", stored.Stages[3].Status)
	assert.Nil(t, stored.DisinformationScore)
	assert.Len(t, stored.Turns, 6)
}

func TestService_SubmitSlowConsumer(t *testing.T) {
	deltas := make([]string, 2000)
	var report strings.Builder
	for i := range deltas {
		deltas[i] = strconv.Itoa(i) + " "
		report.WriteString(deltas[i])
	}
	gen := testhelpers.NewScriptedGenerator(map[string]testhelpers.Scripted{
		stages.Researcher: {Deltas: nil, Text: "facts", Err: nil, Delay: 100 * time.Millisecond},
		stages.Reporter:   {Deltas: deltas, Text: "", Err: nil, Delay: 0},
	})
	svc := newService(t, gen, stubExtractor{err: nil})

	inv, err := svc.Submit(t.Context(), investigation.Submission{
		Input:        "Claim to check.",
		Language:     pipeline.LanguageEnglish,
		VisitorToken: "",
	})
	require.NoError(t, err)
	events := svc.Subscribe(t.Context(), inv.ID)
	require.NotNil(t, events)

	// Read nothing until the run is over.
	assert.Nil(t, svc.Subscribe(t.Context(), inv.ID))

	got := drainEvents(t, events)
	var streamed strings.Builder
	for _, ev := range got {
		assert.NotEqual(t, pipeline.EventFinished, ev.Kind, "the stream was cut, so it cannot end with finished")
		if ev.Kind == pipeline.EventDelta {
			streamed.WriteString(ev.Text)
		}
	}
	assert.Less(t, len(streamed.String()), report.Len())
	assert.True(t, strings.HasPrefix(report.String(), streamed.String()), "deltas must not have gaps")

	stored, err := svc.Get(t.Context(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", stored.Status)
	replayed := svc.Replay(stored)
	last := replayed[len(replayed)-1]
	require.Equal(t, pipeline.EventFinished, last.Kind)
	assert.Equal(t, report.String(), last.Outcome.Report)
}

func TestService_SubmitRejected(t *testing.T) {
	extractionErr := &extract.Error{
		URL:     "https://example.com/missing",
		Message: "HTTP Error 404: Not Found. The page may not exist or access is denied.",
		Err:     errors.New("http error"),
	}
	tests := []struct {
		name    string
		ex      investigation.Extractor
		input   string
		wantErr error
	}{
		{name: "extraction failure", ex: stubExtractor{err: extractionErr}, input: "https://example.com/missing",
			wantErr: extract.ErrExtraction},
		{name: "empty input", ex: stubExtractor{err: nil}, input: "   ", wantErr: pipeline.ErrEmptyInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := testhelpers.NewScriptedGenerator(nil)
			svc := newService(t, gen, tt.ex)

			_, err := svc.Submit(t.Context(), investigation.Submission{
				Input:        tt.input,
				Language:     pipeline.LanguageEnglish,
				VisitorToken: "visitor-1",
			})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, gen.Stages(), "no stage may run")

			list, err := svc.List(t.Context(), "", 10)
			require.NoError(t, err)
			assert.Equal(t, []models.Investigation{}, list)
		})
	}
}

func TestService_Replay(t *testing.T) {
	svc := newService(t, testhelpers.NewScriptedGenerator(nil), stubExtractor{err: nil})
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)
	inv := &models.Investigation{ //nolint:exhaustruct // only the replayed fields
		ID:     uuid.New(),
		Status: "completed",
		Report: "# VERA Analysis Report",
		Stages: []models.StageResult{
			{Position: 0, Stage: stages.Researcher, Status: "succeeded", Output: "facts", Reason: "",
				StartedAt: started, DurationMS: 1500},
			{Position: 1, Stage: stages.Reporter, Status: "succeeded", Output: "# VERA Analysis Report", Reason: "",
				StartedAt: started.Add(2 * time.Second), DurationMS: 2000},
		},
		FinishedAt: &finished,
		DurationMS: 3500,
	}

	events := svc.Replay(inv)
	kinds := make([]pipeline.EventKind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []pipeline.EventKind{
		pipeline.EventStageStarted, pipeline.EventStageFinished,
		pipeline.EventStageStarted, pipeline.EventStreamCompleted, pipeline.EventStageFinished,
		pipeline.EventFinished,
	}, kinds)
	assert.Equal(t, 1500*time.Millisecond, events[1].Result.Duration)
	assert.Equal(t, "# VERA Analysis Report", events[3].Text)
	last := events[len(events)-1]
	assert.Equal(t, pipeline.StatusCompleted, last.Outcome.Status)
	assert.Equal(t, inv.ID, last.Outcome.SessionID)
	assert.Len(t, last.Outcome.Results, 2)

	inv.Status = models.StatusRunning
	inv.FinishedAt = nil
	assert.Len(t, svc.Replay(inv), 5, "running investigations have no finished event")
}
