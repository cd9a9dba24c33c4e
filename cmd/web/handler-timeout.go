package main

import (
	"net/http"
	"time"
)

const timeoutBody = `{"error":"The request timed out. Please try again."}`

// timeoutHandler responds with 503 Service Unavailable and a JSON error when h misses the deadline. The
// deadline is a little shorter than requestTimeout so that the response is written before the server closes
// the connection.
func timeoutHandler(h http.Handler, requestTimeout time.Duration) http.Handler {
	limited := http.TimeoutHandler(h, requestTimeout-500*time.Millisecond, timeoutBody) //nolint:mnd // 500ms
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only the timeout response keeps this header. Handlers finishing in time set their own content type.
		w.Header().Set("Content-Type", "application/json")
		limited.ServeHTTP(w, r)
	})
}
