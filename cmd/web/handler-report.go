package main

import (
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/models"
	"github.com/myrjola/vera/internal/report"
	"github.com/myrjola/vera/internal/ssr"
	"html/template"
	"net/http"
)

type reportTemplateData struct {
	Investigation *models.Investigation
	Report        template.HTML
	Headings      []ssr.Heading
	HasScores     bool
}

// reportPage renders the markdown report of an investigation as HTML. Running investigations show their
// status and finished stages.
func (app *application) reportPage(w http.ResponseWriter, r *http.Request) {
	inv, ok := app.lookupInvestigation(w, r)
	if !ok {
		return
	}
	fragment, err := report.RenderHTML(inv.Report)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "render report"))
		return
	}
	fragment, headings, err := ssr.DecorateReport(fragment)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "decorate report"))
		return
	}
	app.render(w, r, http.StatusOK, "report", reportTemplateData{
		Investigation: inv,
		Report:        fragment,
		Headings:      headings,
		HasScores: inv.DisinformationScore != nil || inv.ManipulationScore != nil ||
			inv.ConfidenceScore != nil,
	})
}

type investigationsTemplateData struct {
	Investigations []models.Investigation
}

func (app *application) investigationsPage(w http.ResponseWriter, r *http.Request) {
	list, err := app.visitorInvestigations(r)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	app.render(w, r, http.StatusOK, "investigations", investigationsTemplateData{Investigations: list})
}
