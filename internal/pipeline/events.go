package pipeline

import (
	"github.com/google/uuid"
	"time"
)

// EventKind discriminates Event. The values double as SSE event names.
type EventKind string

const (
	EventStageStarted    EventKind = "stage_started"
	EventStageFinished   EventKind = "stage_finished"
	EventDelta           EventKind = "delta"
	EventStreamCompleted EventKind = "stream_completed"
	EventFinished        EventKind = "finished"
)

// Event is emitted by a run in execution order.
//
//   - EventStageStarted carries Stage, Index and StartedAt.
//   - EventStageFinished carries Stage, Index and Result.
//   - EventDelta carries Stage and the appended Text.
//   - EventStreamCompleted carries Stage and the complete Text.
//   - EventFinished carries Outcome and is always the last event.
type Event struct {
	Kind      EventKind    `json:"kind"`
	Stage     string       `json:"stage,omitempty"`
	Index     int          `json:"index"`
	StartedAt time.Time    `json:"startedAt,omitzero"`
	Text      string       `json:"text,omitempty"`
	Result    *StageResult `json:"result,omitempty"`
	Outcome   *Outcome     `json:"outcome,omitempty"`
}

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusTimedOut  Status = "timed_out"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Outcome summarises a finished run. Results holds every stage that was started, including the one that
// aborted the run.
type Outcome struct {
	SessionID uuid.UUID     `json:"sessionId"`
	Status    Status        `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	Results   []StageResult `json:"results"`
	// Report is the output of the streaming stage, or of the last stage when none streams.
	Report   string          `json:"report,omitempty"`
	Duration time.Duration   `json:"durationNs"`
	Session  *SessionContext `json:"-"`
}

// StageOutput returns the output of the named stage when it succeeded.
func (o Outcome) StageOutput(name string) string {
	for _, r := range o.Results {
		if r.StageName == name && r.Status == StageSucceeded {
			return r.Output
		}
	}
	return ""
}
