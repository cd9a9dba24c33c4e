package investigation

import (
	"github.com/myrjola/vera/internal/models"
	"github.com/myrjola/vera/internal/pipeline"
	"time"
)

// Replay rebuilds the events of a finished investigation from the store. Deltas are not stored, so the streamed
// stage is replayed as a single stream_completed event. A running investigation yields the events of its
// finished stages without a finished event.
func (s *Service) Replay(inv *models.Investigation) []pipeline.Event {
	streaming := map[string]bool{}
	for _, st := range s.stages {
		streaming[st.Name] = st.Streams
	}

	results := make([]pipeline.StageResult, 0, len(inv.Stages))
	events := make([]pipeline.Event, 0, 2*len(inv.Stages)+2) //nolint:mnd // started and finished per stage
	for _, sr := range inv.Stages {
		result := pipeline.StageResult{
			StageName: sr.Stage,
			Output:    sr.Output,
			StartedAt: sr.StartedAt,
			Duration:  time.Duration(sr.DurationMS) * time.Millisecond,
			Status:    pipeline.StageStatus(sr.Status),
			Reason:    sr.Reason,
		}
		results = append(results, result)
		events = append(events, pipeline.Event{ //nolint:exhaustruct // stage_started carries no text
			Kind:      pipeline.EventStageStarted,
			Stage:     sr.Stage,
			Index:     sr.Position,
			StartedAt: sr.StartedAt,
		})
		if streaming[sr.Stage] && result.Status == pipeline.StageSucceeded {
			events = append(events, pipeline.Event{ //nolint:exhaustruct // stream_completed carries the text
				Kind:  pipeline.EventStreamCompleted,
				Stage: sr.Stage,
				Index: sr.Position,
				Text:  sr.Output,
			})
		}
		events = append(events, pipeline.Event{ //nolint:exhaustruct // stage_finished carries the result
			Kind:   pipeline.EventStageFinished,
			Stage:  sr.Stage,
			Index:  sr.Position,
			Result: &result,
		})
	}

	if !inv.Finished() {
		return events
	}
	return append(events, pipeline.Event{ //nolint:exhaustruct // finished carries the outcome
		Kind:  pipeline.EventFinished,
		Index: len(inv.Stages),
		Outcome: &pipeline.Outcome{
			SessionID: inv.ID,
			Status:    pipeline.Status(inv.Status),
			Reason:    inv.Reason,
			Results:   results,
			Report:    inv.Report,
			Duration:  time.Duration(inv.DurationMS) * time.Millisecond,
			Session:   nil,
		},
	})
}
