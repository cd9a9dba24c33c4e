package main

import (
	"encoding/json"
	"fmt"
	"github.com/myrjola/vera/internal/e2etest"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const (
	fakeScores = "Disinformation Level: 2/10\nManipulation Level: 3/10\nAnalysis Confidence: 8/10"
	// fakeReportChunks are streamed by the fake model when it plays the reporter.
	fakeReportChunk1 = "# VERA Analysis Report\n\n## 1. Executive Summary\nThe claim is "
	fakeReportChunk2 = "accurate, see [the source](https://example.com/source).\n\n## 7. Conclusion\nAccurate."
)

// newFakeModel serves an OpenAI compatible streaming chat completions endpoint. It recognises the stage by the
// system instruction. The researcher answers after researcherDelay so that tests can subscribe to a live run.
func newFakeModel(t *testing.T, researcherDelay time.Duration) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		instruction := req.Messages[0].Content

		var chunks []string
		switch {
		case strings.HasPrefix(instruction, "You are the Researcher"):
			select {
			case <-time.After(researcherDelay):
			case <-r.Context().Done():
				return
			}
			chunks = []string{"The claim matches public records."}
		case strings.HasPrefix(instruction, "You are the Scoring stage"):
			chunks = []string{fakeScores}
		case strings.HasPrefix(instruction, "You are the Reporter"):
			chunks = []string{fakeReportChunk1, fakeReportChunk2}
		default:
			chunks = []string{"stage output"}
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			b, _ := json.Marshal(c) //nolint:errchkjson // strings always marshal
			_, _ = fmt.Fprintf(w, "data: {\"id\":\"c\",\"object\":\"chat.completion.chunk\",\"model\":\"m\","+
				"\"choices\":[{\"index\":0,\"delta\":{\"content\":%s}}]}\n\n", b)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(server.Close)
	return server
}

// testLookupEnv configures the server with an in-memory database and the fake model.
func testLookupEnv(modelURL string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		switch key {
		case "VERA_ADDR":
			return "localhost:0", true
		case "VERA_SQLITE_URL":
			return ":memory:", true
		case "VERA_PROVIDER":
			return "openai", true
		case "OPENAI_API_KEY":
			return "test-key", true
		case "OPENAI_BASE_URL":
			return modelURL + "/v1", true
		case "GOOGLE_API_KEY":
			return "test-google-key", true
		case "GOOGLE_CSE_ID":
			return "test-engine", true
		default:
			return "", false
		}
	}
}

// startTestServer starts the web server against a fake model and returns a client for the first visitor.
func startTestServer(t *testing.T, researcherDelay time.Duration) *e2etest.Client {
	t.Helper()
	model := newFakeModel(t, researcherDelay)
	server, err := e2etest.StartServer(t, io.Discard, testLookupEnv(model.URL), run)
	require.NoError(t, err)
	return server.Client()
}
