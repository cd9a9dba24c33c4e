package main

import (
	"encoding/json"
	"github.com/google/uuid"
	"github.com/myrjola/vera/internal/contexthelpers"
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/extract"
	"github.com/myrjola/vera/internal/investigation"
	"github.com/myrjola/vera/internal/models"
	"github.com/myrjola/vera/internal/pipeline"
	"github.com/myrjola/vera/internal/repositories"
	"log/slog"
	"net/http"
	"time"
)

const (
	// maxRequestBytes leaves room for long pasted articles.
	maxRequestBytes = 1 << 20
	listLimit       = 50
	emptyInputMsg   = "Please enter text to investigate."
)

type createInvestigationRequest struct {
	Input    string `json:"input"`
	Language string `json:"language"`
}

type createInvestigationResponse struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"sessionId"`
	Status    string    `json:"status"`
}

type scoresResponse struct {
	Disinformation *int `json:"disinformation"`
	Manipulation   *int `json:"manipulation"`
	Confidence     *int `json:"confidence"`
}

type stageResponse struct {
	Stage      string    `json:"stage"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Output     string    `json:"output,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMS int64     `json:"durationMs"`
}

type turnResponse struct {
	Role  string `json:"role"`
	Stage string `json:"stage"`
	Text  string `json:"text"`
}

type investigationResponse struct {
	ID          uuid.UUID       `json:"id"`
	Status      string          `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	Language    string          `json:"language"`
	SourceURL   string          `json:"sourceUrl,omitempty"`
	SubmittedAt time.Time       `json:"submittedAt"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
	DurationMS  int64           `json:"durationMs"`
	Scores      scoresResponse  `json:"scores"`
	Report      string          `json:"report,omitempty"`
	InputText   string          `json:"inputText,omitempty"`
	Stages      []stageResponse `json:"stages,omitempty"`
	Turns       []turnResponse  `json:"turns,omitempty"`
}

// newInvestigationResponse maps the stored investigation. Stages and turns are only loaded by Get, so the list
// view stays small.
func newInvestigationResponse(inv *models.Investigation) investigationResponse {
	resp := investigationResponse{
		ID:          inv.ID,
		Status:      inv.Status,
		Reason:      inv.Reason,
		Language:    inv.Language,
		SourceURL:   inv.SourceURL,
		SubmittedAt: inv.SubmittedAt,
		FinishedAt:  inv.FinishedAt,
		DurationMS:  inv.DurationMS,
		Scores: scoresResponse{
			Disinformation: inv.DisinformationScore,
			Manipulation:   inv.ManipulationScore,
			Confidence:     inv.ConfidenceScore,
		},
		Report:    inv.Report,
		InputText: inv.InputText,
		Stages:    nil,
		Turns:     nil,
	}
	for _, st := range inv.Stages {
		resp.Stages = append(resp.Stages, stageResponse{
			Stage:      st.Stage,
			Status:     st.Status,
			Reason:     st.Reason,
			Output:     st.Output,
			StartedAt:  st.StartedAt,
			DurationMS: st.DurationMS,
		})
	}
	for _, turn := range inv.Turns {
		resp.Turns = append(resp.Turns, turnResponse{Role: turn.Role, Stage: turn.Stage, Text: turn.Text})
	}
	return resp
}

// createInvestigation extracts URL input and starts the pipeline in the background. Extraction failures are
// answered with the extractor's message so that the visitor learns why the page could not be read.
func (app *application) createInvestigation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createInvestigationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		app.clientError(w, r, http.StatusBadRequest, "Request body must be JSON with an input field.")
		return
	}
	lang := pipeline.LanguageEnglish
	if req.Language != "" {
		var err error
		if lang, err = pipeline.ParseLanguage(req.Language); err != nil {
			app.clientError(w, r, http.StatusBadRequest, "Language must be en or pl.")
			return
		}
	}

	inv, err := app.investigations.Submit(ctx, investigation.Submission{
		Input:        req.Input,
		Language:     lang,
		VisitorToken: contexthelpers.VisitorToken(ctx),
	})
	var extractErr *extract.Error
	switch {
	case errors.As(err, &extractErr):
		app.clientError(w, r, http.StatusUnprocessableEntity, extractErr.Message)
		return
	case errors.Is(err, pipeline.ErrEmptyInput):
		app.clientError(w, r, http.StatusUnprocessableEntity, emptyInputMsg)
		return
	case err != nil:
		app.serverError(w, r, errors.Wrap(err, "submit investigation"))
		return
	}

	app.logger.LogAttrs(ctx, slog.LevelInfo, "investigation submitted",
		slog.String("session_id", inv.ID.String()), slog.Bool("from_url", inv.SourceURL != ""))
	w.Header().Set("Location", "/api/investigations/"+inv.ID.String())
	app.writeJSON(w, r, http.StatusAccepted, createInvestigationResponse{
		ID:        inv.ID,
		SessionID: inv.ID,
		Status:    inv.Status,
	})
}

// listInvestigations returns the investigations of the current visitor, newest first.
func (app *application) listInvestigations(w http.ResponseWriter, r *http.Request) {
	list, err := app.visitorInvestigations(r)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	resp := make([]investigationResponse, 0, len(list))
	for i := range list {
		resp = append(resp, newInvestigationResponse(&list[i]))
	}
	app.writeJSON(w, r, http.StatusOK, resp)
}

func (app *application) visitorInvestigations(r *http.Request) ([]models.Investigation, error) {
	ctx := r.Context()
	token := contexthelpers.VisitorToken(ctx)
	if token == "" {
		return nil, errors.New("visitor token missing from context")
	}
	list, err := app.investigations.List(ctx, token, listLimit)
	if err != nil {
		return nil, errors.Wrap(err, "list investigations")
	}
	return list, nil
}

func (app *application) getInvestigation(w http.ResponseWriter, r *http.Request) {
	inv, ok := app.lookupInvestigation(w, r)
	if !ok {
		return
	}
	app.writeJSON(w, r, http.StatusOK, newInvestigationResponse(inv))
}

// lookupInvestigation loads the investigation named by the id path value. It responds with 404 for malformed
// and unknown ids and returns false when the response has been written.
func (app *application) lookupInvestigation(w http.ResponseWriter, r *http.Request) (*models.Investigation, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		app.notFound(w, r)
		return nil, false
	}
	inv, err := app.investigations.Get(r.Context(), id)
	if errors.Is(err, repositories.ErrNotFound) {
		app.notFound(w, r)
		return nil, false
	}
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "get investigation", slog.String("id", id.String())))
		return nil, false
	}
	return inv, true
}
