// Package repositories persists investigations.
package repositories

import (
	"context"
	"database/sql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/models"
	"github.com/myrjola/vera/internal/sqlite"
	"log/slog"
	"time"
)

var ErrNotFound = errors.NewSentinel("investigation not found")

const investigationColumns = `id, visitor_token, raw_text, input_text, source_url, language, status, reason, report,
disinformation_score, manipulation_score, confidence_score, submitted_at, finished_at, duration_ms`

type InvestigationRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func NewInvestigationRepository(db *sqlite.Database, logger *slog.Logger) *InvestigationRepository {
	return &InvestigationRepository{
		db:     db,
		logger: logger.With("source", "InvestigationRepository"),
	}
}

// Create inserts a running investigation.
func (r *InvestigationRepository) Create(ctx context.Context, inv *models.Investigation) error {
	inv.Status = models.StatusRunning
	stmt := `INSERT INTO investigations (` + investigationColumns + `)
VALUES (:id, :visitor_token, :raw_text, :input_text, :source_url, :language, :status, :reason, :report,
        :disinformation_score, :manipulation_score, :confidence_score, :submitted_at, :finished_at, :duration_ms)`
	if _, err := r.db.ReadWrite.NamedExecContext(ctx, stmt, inv); err != nil {
		return errors.Wrap(err, "insert investigation", slog.String("id", inv.ID.String()))
	}
	return nil
}

// RecordStage stores the result of a finished stage. Position is the zero-based index of the stage.
func (r *InvestigationRepository) RecordStage(ctx context.Context, id uuid.UUID, result models.StageResult) error {
	stmt := `INSERT INTO stage_results (investigation_id, position, stage, status, output, reason, started_at, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ReadWrite.ExecContext(ctx, stmt, id, result.Position, result.Stage, result.Status, result.Output,
		result.Reason, result.StartedAt.UTC(), result.DurationMS); err != nil {
		return errors.Wrap(err, "insert stage result",
			slog.String("id", id.String()), slog.String("stage", result.Stage))
	}
	return nil
}

// Completion is the final state of an investigation.
type Completion struct {
	Status              string
	Reason              string
	Report              string
	DisinformationScore *int
	ManipulationScore   *int
	ConfidenceScore     *int
	FinishedAt          time.Time
	Duration            time.Duration
	Turns               []models.Turn
}

// Finish stores the outcome and the session turns of an investigation in one transaction.
func (r *InvestigationRepository) Finish(ctx context.Context, id uuid.UUID, c Completion) error {
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE investigations
SET status = ?, reason = ?, report = ?, disinformation_score = ?, manipulation_score = ?, confidence_score = ?,
    finished_at = ?, duration_ms = ?
WHERE id = ?`, c.Status, c.Reason, c.Report, c.DisinformationScore, c.ManipulationScore, c.ConfidenceScore,
			c.FinishedAt.UTC(), c.Duration.Milliseconds(), id)
		if err != nil {
			return errors.Wrap(err, "update investigation")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "rows affected")
		}
		if n == 0 {
			return ErrNotFound
		}
		for _, turn := range c.Turns {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO turns (investigation_id, position, role, stage, text) VALUES (?, ?, ?, ?, ?)`,
				id, turn.Position, turn.Role, turn.Stage, turn.Text); err != nil {
				return errors.Wrap(err, "insert turn", slog.Int("position", turn.Position))
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "finish investigation", slog.String("id", id.String()))
	}
	return nil
}

// Get returns the investigation with its stage results and turns.
func (r *InvestigationRepository) Get(ctx context.Context, id uuid.UUID) (*models.Investigation, error) {
	var inv models.Investigation
	err := r.db.ReadOnly.GetContext(ctx, &inv,
		`SELECT `+investigationColumns+` FROM investigations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(ErrNotFound, "get investigation", slog.String("id", id.String()))
	}
	if err != nil {
		return nil, errors.Wrap(err, "get investigation", slog.String("id", id.String()))
	}
	if err = r.db.ReadOnly.SelectContext(ctx, &inv.Stages, `SELECT position, stage, status, output, reason,
       started_at, duration_ms
FROM stage_results
WHERE investigation_id = ?
ORDER BY position`, id); err != nil {
		return nil, errors.Wrap(err, "select stage results")
	}
	if err = r.db.ReadOnly.SelectContext(ctx, &inv.Turns, `SELECT position, role, stage, text
FROM turns
WHERE investigation_id = ?
ORDER BY position`, id); err != nil {
		return nil, errors.Wrap(err, "select turns")
	}
	return &inv, nil
}

// List returns the most recent investigations without stage results and turns. An empty visitorToken lists
// the investigations of all visitors.
func (r *InvestigationRepository) List(ctx context.Context, visitorToken string, limit int) ([]models.Investigation, error) {
	investigations := []models.Investigation{}
	stmt := `SELECT ` + investigationColumns + ` FROM investigations
WHERE @visitor_token = '' OR visitor_token = @visitor_token
ORDER BY submitted_at DESC
LIMIT @limit`
	if err := r.db.ReadOnly.SelectContext(ctx, &investigations, stmt,
		sql.Named("visitor_token", visitorToken), sql.Named("limit", limit)); err != nil {
		return nil, errors.Wrap(err, "list investigations")
	}
	return investigations, nil
}

// MarkInterrupted fails the investigations left running by a previous process.
func (r *InvestigationRepository) MarkInterrupted(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ReadWrite.ExecContext(ctx, `UPDATE investigations
SET status = 'failed', reason = 'investigation interrupted by a server restart', finished_at = ?
WHERE status = ?`, now.UTC(), models.StatusRunning)
	if err != nil {
		return 0, errors.Wrap(err, "mark interrupted investigations")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return n, nil
}
