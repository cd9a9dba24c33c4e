// Package models holds the persisted shape of investigations.
package models

import (
	"github.com/google/uuid"
	"time"
)

// StatusRunning marks an investigation whose pipeline has not finished yet. Finished investigations carry the
// pipeline outcome status: completed, timed_out, failed or cancelled.
const StatusRunning = "running"

// Investigation is one submitted text or URL and everything the pipeline produced for it.
type Investigation struct {
	ID uuid.UUID `db:"id"`
	// VisitorToken ties the investigation to the browser session that submitted it. Empty for CLI runs.
	VisitorToken string `db:"visitor_token"`
	RawText      string `db:"raw_text"`
	// InputText is what the pipeline analysed, i.e. RawText or the content extracted from SourceURL.
	InputText           string     `db:"input_text"`
	SourceURL           string     `db:"source_url"`
	Language            string     `db:"language"`
	Status              string     `db:"status"`
	Reason              string     `db:"reason"`
	Report              string     `db:"report"`
	DisinformationScore *int       `db:"disinformation_score"`
	ManipulationScore   *int       `db:"manipulation_score"`
	ConfidenceScore     *int       `db:"confidence_score"`
	SubmittedAt         time.Time  `db:"submitted_at"`
	FinishedAt          *time.Time `db:"finished_at"`
	DurationMS          int64      `db:"duration_ms"`

	Stages []StageResult `db:"-"`
	Turns  []Turn        `db:"-"`
}

func (i *Investigation) Finished() bool {
	return i.Status != StatusRunning
}

// StageResult is the audit record of one stage execution.
type StageResult struct {
	Position   int       `db:"position"`
	Stage      string    `db:"stage"`
	Status     string    `db:"status"`
	Output     string    `db:"output"`
	Reason     string    `db:"reason"`
	StartedAt  time.Time `db:"started_at"`
	DurationMS int64     `db:"duration_ms"`
}

// Turn is one message of the accumulated session context.
type Turn struct {
	Position int    `db:"position"`
	Role     string `db:"role"`
	Stage    string `db:"stage"`
	Text     string `db:"text"`
}
