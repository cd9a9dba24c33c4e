package main

import (
	"github.com/justinas/alice"
	"net/http"
	"time"
)

func (app *application) routes(requestTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	visitor := alice.New(app.sessionManager.LoadAndSave, app.visitor)
	mux.Handle("GET /api/healthy", http.HandlerFunc(app.healthy))
	mux.Handle("POST /api/investigations", visitor.ThenFunc(app.createInvestigation))
	mux.Handle("GET /api/investigations", visitor.ThenFunc(app.listInvestigations))
	mux.Handle("GET /api/investigations/{id}", http.HandlerFunc(app.getInvestigation))
	mux.Handle("GET /investigations", visitor.ThenFunc(app.investigationsPage))
	mux.Handle("GET /investigations/{id}/report", http.HandlerFunc(app.reportPage))

	// Event streams outlive the request timeout and cannot be buffered by the session middleware.
	streams := http.NewServeMux()
	streams.Handle("GET /api/investigations/{id}/events",
		alice.New(app.serverSentEventMiddleware).ThenFunc(app.investigationEvents))
	streams.Handle("/", timeoutHandler(mux, requestTimeout))

	common := alice.New(app.recoverPanic, app.logRequest, app.secureHeaders)
	return common.Then(streams)
}
