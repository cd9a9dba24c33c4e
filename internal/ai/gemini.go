package ai

import (
	"context"
	"github.com/myrjola/vera/internal/errors"
	"google.golang.org/genai"
	"log/slog"
	"slices"
	"strings"
)

// GeminiOptions configure GeminiGenerator.
type GeminiOptions struct {
	Model string
	// BaseURL overrides the API endpoint.
	BaseURL         string
	MaxOutputTokens int
	Tools           Toolbox
	Logger          *slog.Logger
}

// GeminiGenerator streams content from the Gemini API. Web search is served by the built-in Google Search
// grounding tool; other capabilities are exposed as function declarations.
type GeminiGenerator struct {
	client    *genai.Client
	model     string
	maxTokens int32
	tools     Toolbox
	logger    *slog.Logger
}

func NewGeminiGenerator(ctx context.Context, apiKey string, opts GeminiOptions) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{ //nolint:exhaustruct // this is better for readability
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: opts.BaseURL}, //nolint:exhaustruct // defaults are fine
	})
	if err != nil {
		return nil, errors.Wrap(err, "create genai client")
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	maxTokens := opts.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = MaxTokens
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GeminiGenerator{
		client:    client,
		model:     model,
		maxTokens: int32(maxTokens), //nolint:gosec // token budgets are small
		tools:     opts.Tools,
		logger:    logger.With("source", "GeminiGenerator"),
	}, nil
}

// Generate streams the response, forwarding text increments to onDelta and answering function calls with the
// registered tools.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request, onDelta DeltaFunc) (Response, error) {
	tools, err := g.tools.Resolve(req.Capabilities, CapabilityWebSearch)
	if err != nil {
		return Response{}, errors.Wrap(err, "resolve tools")
	}
	maxTokens := g.maxTokens
	if req.MaxOutputTokens > 0 {
		maxTokens = int32(req.MaxOutputTokens) //nolint:gosec // token budgets are small
	}
	config := &genai.GenerateContentConfig{ //nolint:exhaustruct // this is better for readability
		MaxOutputTokens: maxTokens,
		Tools:           toGeminiTools(req.Capabilities, tools),
	}
	if req.Instruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.Instruction, genai.RoleUser)
	}
	contents := toGeminiContents(req.Messages)

	var (
		text      strings.Builder
		citations []string
	)
	for round := 0; round < maxToolRounds; round++ {
		var calls []*genai.FunctionCall
		for resp, streamErr := range g.client.Models.GenerateContentStream(ctx, g.model, contents, config) {
			if streamErr != nil {
				return Response{}, errors.Wrap(streamErr, "stream content", slog.String("stage", req.Stage))
			}
			chunk := resp.Text()
			if chunk != "" {
				text.WriteString(chunk)
				if err = emit(onDelta, chunk); err != nil {
					return Response{}, errors.Wrap(err, "deliver delta")
				}
			}
			calls = append(calls, resp.FunctionCalls()...)
			citations = appendGrounding(citations, resp)
		}
		if len(calls) == 0 {
			return Response{Text: text.String(), Citations: citations}, nil
		}

		callParts := make([]*genai.Part, 0, len(calls))
		answerParts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			callParts = append(callParts, &genai.Part{FunctionCall: call}) //nolint:exhaustruct // only the call
			out := g.callTool(ctx, call)
			answerParts = append(answerParts, genai.NewPartFromFunctionResponse(call.Name, map[string]any{"output": out}))
		}
		contents = append(contents,
			genai.NewContentFromParts(callParts, genai.RoleModel),
			genai.NewContentFromParts(answerParts, genai.RoleUser),
		)
	}
	return Response{}, errors.New("too many tool call rounds",
		slog.String("stage", req.Stage), slog.Int("rounds", maxToolRounds))
}

func (g *GeminiGenerator) callTool(ctx context.Context, call *genai.FunctionCall) string {
	tool, ok := g.tools[call.Name]
	if !ok {
		return "Error: unknown tool " + call.Name
	}
	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	return g.tools.call(ctx, g.logger, tool, args)
}

func toGeminiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}

func toGeminiTools(capabilities []string, tools []Tool) []*genai.Tool {
	var out []*genai.Tool
	for _, c := range capabilities {
		if c == CapabilityWebSearch {
			out = append(out, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}}) //nolint:exhaustruct // grounding only
		}
	}
	if len(tools) == 0 {
		return out
	}
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		schema := t.Parameters()
		props := make(map[string]*genai.Schema, len(schema.Properties))
		for name, p := range schema.Properties {
			props[name] = &genai.Schema{ //nolint:exhaustruct // this is better for readability
				Type:        geminiType(p.Type),
				Description: p.Description,
			}
		}
		declarations = append(declarations, &genai.FunctionDeclaration{ //nolint:exhaustruct // this is better for readability
			Name:        t.Name(),
			Description: t.Description(),
			Parameters: &genai.Schema{ //nolint:exhaustruct // this is better for readability
				Type:       genai.TypeObject,
				Properties: props,
				Required:   schema.Required,
			},
		})
	}
	return append(out, &genai.Tool{FunctionDeclarations: declarations}) //nolint:exhaustruct // functions only
}

func geminiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

// appendGrounding collects the web sources of Google Search grounding without duplicates.
func appendGrounding(citations []string, resp *genai.GenerateContentResponse) []string {
	for _, candidate := range resp.Candidates {
		if candidate.GroundingMetadata == nil {
			continue
		}
		for _, chunk := range candidate.GroundingMetadata.GroundingChunks {
			if chunk.Web == nil || chunk.Web.URI == "" {
				continue
			}
			if !slices.Contains(citations, chunk.Web.URI) {
				citations = append(citations, chunk.Web.URI)
			}
		}
	}
	return citations
}
