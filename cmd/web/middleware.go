package main

import (
	"fmt"
	"github.com/google/uuid"
	"github.com/myrjola/vera/internal/contexthelpers"
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/logging"
	"github.com/myrjola/vera/internal/random"
	"log/slog"
	"net/http"
)

func (app *application) secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce, err := random.Letters(24) //nolint:mnd // 24 letters is plenty of entropy for a nonce
		if err != nil {
			app.serverError(w, r, errors.Wrap(err, "generate nonce"))
			return
		}
		r = contexthelpers.SetCSPNonce(r, nonce)

		w.Header().Set("Content-Security-Policy",
			fmt.Sprintf("default-src 'none'; style-src 'nonce-%s'; img-src 'self'; base-uri 'none'; "+
				"form-action 'self'; frame-ancestors 'none';", nonce))
		w.Header().Set("Referrer-Policy", "origin-when-cross-origin")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-XSS-Protection", "0")

		next.ServeHTTP(w, r)
	})
}

func (app *application) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			proto  = r.Proto
			method = r.Method
			uri    = r.URL.RequestURI()
		)
		ctx := logging.WithAttrs(r.Context(), slog.String("method", method), slog.String("uri", uri))
		app.logger.LogAttrs(ctx, slog.LevelDebug, "received request", slog.String("proto", proto))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (app *application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")
				app.serverError(w, r, errors.New("panic", slog.Any("recovered", err)))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// visitor makes sure the session carries a visitor token and exposes it with [contexthelpers.VisitorToken].
// It must run inside app.sessionManager.LoadAndSave.
func (app *application) visitor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token := app.sessionManager.GetString(ctx, visitorTokenSessionKey)
		if token == "" {
			token = uuid.NewString()
			app.sessionManager.Put(ctx, visitorTokenSessionKey, token)
		}
		next.ServeHTTP(w, contexthelpers.SetVisitorToken(r, token))
	})
}

// serverSentEventMiddleware makes our session library scs work with Server Sent Events (SSE).
// Use this instead of app.sessionManager.LoadAndSave. The session is read but never written.
// See https://github.com/alexedwards/scs/issues/141#issuecomment-1807075358
func (app *application) serverSentEventMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		cookie, err := r.Cookie(app.sessionManager.Cookie.Name)
		if err == nil {
			token = cookie.Value
		}
		ctx, err := app.sessionManager.Load(r.Context(), token)
		if err != nil {
			app.serverError(w, r, err)
			return
		}
		r = r.WithContext(ctx)
		if visitorToken := app.sessionManager.GetString(ctx, visitorTokenSessionKey); visitorToken != "" {
			r = contexthelpers.SetVisitorToken(r, visitorToken)
		}

		next.ServeHTTP(w, r)
	})
}
