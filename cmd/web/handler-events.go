package main

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/models"
	"github.com/myrjola/vera/internal/pipeline"
	"log/slog"
	"net/http"
	"time"
)

// keepAliveInterval keeps proxies from closing a stream while a slow stage runs.
const keepAliveInterval = 15 * time.Second

// eventWriter writes pipeline events in the text/event-stream format. The event kind is the SSE event name and
// the JSON encoded event is the data.
type eventWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func (e eventWriter) write(ev pipeline.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal event", slog.String("kind", string(ev.Kind)))
	}
	if _, err = fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
		return errors.Wrap(err, "write event")
	}
	return e.flush()
}

func (e eventWriter) comment(text string) error {
	if _, err := fmt.Fprintf(e.w, ": %s\n\n", text); err != nil {
		return errors.Wrap(err, "write comment")
	}
	return e.flush()
}

func (e eventWriter) flush() error {
	if err := e.rc.Flush(); err != nil {
		return errors.Wrap(err, "flush")
	}
	return nil
}

// investigationEvents streams the events of a running investigation. Finished investigations, and running ones
// that already have a live consumer, are replayed from the store once the run has ended.
func (app *application) investigationEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inv, ok := app.lookupInvestigation(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	// The stream lasts as long as the pipeline, which exceeds the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		app.serverError(w, r, errors.Wrap(err, "clear write deadline"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	out := eventWriter{w: w, rc: rc}

	if !inv.Finished() {
		if err := out.comment("waiting for " + inv.ID.String()); err != nil {
			app.logger.LogAttrs(ctx, slog.LevelDebug, "event stream closed", errors.SlogError(err))
			return
		}
		sent := map[eventKey]bool{}
		if events := app.investigations.Subscribe(ctx, inv.ID); events != nil {
			var finished bool
			if sent, finished = app.streamLive(ctx, out, events); finished || ctx.Err() != nil {
				return
			}
			// The stream was closed because this consumer fell behind. Wait for the run to end.
			app.investigations.Subscribe(ctx, inv.ID)
			if ctx.Err() != nil {
				return
			}
		}
		var err error
		if inv, err = app.investigations.Get(ctx, inv.ID); err != nil {
			app.logger.LogAttrs(ctx, slog.LevelError, "failed to reload investigation", errors.SlogError(err))
			return
		}
		app.replay(ctx, out, inv, sent)
		return
	}
	app.replay(ctx, out, inv, nil)
}

// eventKey identifies the stage level events of a run. Deltas are not keyed.
type eventKey struct {
	kind  pipeline.EventKind
	index int
}

// replay writes the stored events of inv that are not in sent.
func (app *application) replay(ctx context.Context, out eventWriter, inv *models.Investigation, sent map[eventKey]bool) {
	for _, ev := range app.investigations.Replay(inv) {
		if sent[eventKey{kind: ev.Kind, index: ev.Index}] {
			continue
		}
		if err := out.write(ev); err != nil {
			app.logger.LogAttrs(ctx, slog.LevelDebug, "event stream closed", errors.SlogError(err))
			return
		}
	}
}

// streamLive writes events until the channel is closed. It returns the stage level events it wrote and whether
// the finished event was among them.
func (app *application) streamLive(
	ctx context.Context,
	out eventWriter,
	events <-chan pipeline.Event,
) (map[eventKey]bool, bool) {
	sent := map[eventKey]bool{}
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Done():
			return sent, false
		case <-keepAlive.C:
			if err := out.comment("keep-alive"); err != nil {
				app.logger.LogAttrs(ctx, slog.LevelDebug, "event stream closed", errors.SlogError(err))
				return sent, false
			}
		case ev, ok := <-events:
			if !ok {
				return sent, false
			}
			if err := out.write(ev); err != nil {
				app.logger.LogAttrs(ctx, slog.LevelDebug, "event stream closed", errors.SlogError(err))
				return sent, false
			}
			if ev.Kind != pipeline.EventDelta {
				sent[eventKey{kind: ev.Kind, index: ev.Index}] = true
			}
			if ev.Kind == pipeline.EventFinished {
				return sent, true
			}
		}
	}
}
