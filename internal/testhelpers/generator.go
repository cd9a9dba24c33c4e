package testhelpers

import (
	"context"
	"fmt"
	"github.com/myrjola/vera/internal/ai"
	"sync"
	"time"
)

// Scripted is the canned behaviour of ScriptedGenerator for one stage.
type Scripted struct {
	// Deltas are streamed in order. The response text is their concatenation unless Text is set.
	Deltas []string
	// Text overrides the final response text.
	Text string
	// Err is returned after the deltas are delivered.
	Err error
	// Delay blocks the call until it elapses or the context is done.
	Delay time.Duration
}

// ScriptedGenerator is an [ai.Generator] test double answering per stage name.
type ScriptedGenerator struct {
	mu       sync.Mutex
	scripts  map[string]Scripted
	requests []ai.Request
}

func NewScriptedGenerator(scripts map[string]Scripted) *ScriptedGenerator {
	if scripts == nil {
		scripts = map[string]Scripted{}
	}
	return &ScriptedGenerator{scripts: scripts} //nolint:exhaustruct // zero values are fine
}

// Generate replays the script of req.Stage. Stages without a script answer "<stage> output".
func (g *ScriptedGenerator) Generate(ctx context.Context, req ai.Request, onDelta ai.DeltaFunc) (ai.Response, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	script, ok := g.scripts[req.Stage]
	g.mu.Unlock()
	if !ok {
		script = Scripted{Text: fmt.Sprintf("%s output", req.Stage)} //nolint:exhaustruct // text only
	}

	if script.Delay > 0 {
		select {
		case <-ctx.Done():
			return ai.Response{}, ctx.Err() //nolint:wrapcheck // mimic the backends
		case <-time.After(script.Delay):
		}
	}

	text := ""
	for _, d := range script.Deltas {
		text += d
		if onDelta != nil {
			if err := onDelta(d); err != nil {
				return ai.Response{}, err
			}
		}
	}
	if script.Err != nil {
		return ai.Response{}, script.Err
	}
	if script.Text != "" {
		text = script.Text
	}
	return ai.Response{Text: text, Citations: nil}, nil
}

// Requests returns the requests received so far in call order.
func (g *ScriptedGenerator) Requests() []ai.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ai.Request(nil), g.requests...)
}

// Stages returns the stage names of the received requests in call order.
func (g *ScriptedGenerator) Stages() []string {
	requests := g.Requests()
	names := make([]string, 0, len(requests))
	for _, r := range requests {
		names = append(names, r.Stage)
	}
	return names
}
