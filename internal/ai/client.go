package ai

import (
	"context"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Capability names understood by the generators.
const (
	CapabilityWebSearch = "web_search"
	CapabilityWikipedia = "wikipedia"
)

// MaxTokens is the default output budget of a single generation.
const MaxTokens = 4096

// Message is one turn of the conversation sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Request describes a single generation call.
type Request struct {
	// Stage names the pipeline stage issuing the request. Used for logging and test doubles.
	Stage string
	// Instruction is the system instruction.
	Instruction string
	// Messages is the conversation history in order, ending with the newest user turn.
	Messages []Message
	// Capabilities lists the external tools the model may use.
	Capabilities []string
	// MaxOutputTokens falls back to the generator default when zero.
	MaxOutputTokens int
}

// Response is the complete result of a generation call.
type Response struct {
	Text string
	// Citations are source URLs reported by the backend, e.g. search grounding chunks.
	Citations []string
}

// DeltaFunc receives text increments while a generation is in flight. Each increment is appended to the
// previously delivered text. Returning an error aborts the generation.
type DeltaFunc func(delta string) error

// Generator produces text for a system instruction and a conversation.
//
// Implementations must be safe for concurrent use by independent investigations.
type Generator interface {
	Generate(ctx context.Context, req Request, onDelta DeltaFunc) (Response, error)
}

// emit forwards delta to onDelta when both are non-empty.
func emit(onDelta DeltaFunc, delta string) error {
	if onDelta == nil || delta == "" {
		return nil
	}
	return onDelta(delta)
}
