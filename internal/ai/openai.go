package ai

import (
	"context"
	"github.com/myrjola/vera/internal/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"io"
	"log/slog"
	"sort"
	"strings"
)

// maxToolRounds bounds the number of tool call round trips within one generation.
const maxToolRounds = 5

// OpenAIOptions configure OpenAIGenerator.
type OpenAIOptions struct {
	Model string
	// BaseURL overrides the API endpoint, e.g. for OpenAI compatible gateways.
	BaseURL         string
	MaxOutputTokens int
	Tools           Toolbox
	Logger          *slog.Logger
}

// OpenAIGenerator streams chat completions from the OpenAI API and executes tool calls for capabilities.
type OpenAIGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int
	tools     Toolbox
	logger    *slog.Logger
}

func NewOpenAIGenerator(apiKey string, opts OpenAIOptions) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := opts.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = MaxTokens
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &OpenAIGenerator{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: maxTokens,
		tools:     opts.Tools,
		logger:    logger.With("source", "OpenAIGenerator"),
	}
}

// Generate streams the completion, forwarding content increments to onDelta. When the model requests tool
// calls the tools are executed and the conversation continues until the model answers with text.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request, onDelta DeltaFunc) (Response, error) {
	tools, err := g.tools.Resolve(req.Capabilities)
	if err != nil {
		return Response{}, errors.Wrap(err, "resolve tools")
	}
	maxTokens := req.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = g.maxTokens
	}
	messages := toOpenAIMessages(req)

	var text strings.Builder
	for round := 0; round < maxToolRounds; round++ {
		chatReq := openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
			Model:     g.model,
			MaxTokens: maxTokens,
			Messages:  messages,
			Tools:     toOpenAITools(tools),
			Stream:    true,
		}
		var toolCalls []openai.ToolCall
		if toolCalls, err = g.stream(ctx, chatReq, &text, onDelta); err != nil {
			return Response{}, errors.Wrap(err, "stream completion", slog.String("stage", req.Stage))
		}
		if len(toolCalls) == 0 {
			return Response{Text: text.String(), Citations: nil}, nil
		}

		messages = append(messages, openai.ChatCompletionMessage{ //nolint:exhaustruct // this is better for readability
			Role:      openai.ChatMessageRoleAssistant,
			ToolCalls: toolCalls,
		})
		for _, call := range toolCalls {
			out := g.tools.invoke(ctx, g.logger, call.Function.Name, call.Function.Arguments)
			messages = append(messages, openai.ChatCompletionMessage{ //nolint:exhaustruct // this is better for readability
				Role:       openai.ChatMessageRoleTool,
				Content:    out,
				ToolCallID: call.ID,
			})
		}
	}
	return Response{}, errors.New("too many tool call rounds",
		slog.String("stage", req.Stage), slog.Int("rounds", maxToolRounds))
}

// stream reads one streamed completion. Content is appended to text and forwarded to onDelta; tool call
// fragments are assembled by index.
func (g *OpenAIGenerator) stream(
	ctx context.Context,
	chatReq openai.ChatCompletionRequest,
	text *strings.Builder,
	onDelta DeltaFunc,
) ([]openai.ToolCall, error) {
	stream, err := g.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, errors.Wrap(err, "create chat completion stream")
	}
	defer func() {
		if err = stream.Close(); err != nil {
			g.logger.LogAttrs(ctx, slog.LevelWarn, "could not close stream", errors.SlogError(err))
		}
	}()

	calls := map[int]*openai.ToolCall{}
	for {
		var resp openai.ChatCompletionStreamResponse
		resp, err = stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "receive chunk")
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			text.WriteString(delta.Content)
			if err = emit(onDelta, delta.Content); err != nil {
				return nil, errors.Wrap(err, "deliver delta")
			}
		}
		for i, fragment := range delta.ToolCalls {
			idx := i
			if fragment.Index != nil {
				idx = *fragment.Index
			}
			call, ok := calls[idx]
			if !ok {
				call = &openai.ToolCall{Type: openai.ToolTypeFunction} //nolint:exhaustruct // filled below
				calls[idx] = call
			}
			if fragment.ID != "" {
				call.ID = fragment.ID
			}
			call.Function.Name += fragment.Function.Name
			call.Function.Arguments += fragment.Function.Arguments
		}
	}

	indexes := make([]int, 0, len(calls))
	for idx := range calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	toolCalls := make([]openai.ToolCall, 0, len(calls))
	for _, idx := range indexes {
		toolCalls = append(toolCalls, *calls[idx])
	}
	return toolCalls, nil
}

func toOpenAIMessages(req Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.Instruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{ //nolint:exhaustruct // this is better for readability
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Instruction,
		})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{ //nolint:exhaustruct // this is better for readability
			Role:    role,
			Content: m.Content,
		})
	}
	return messages
}

func toOpenAITools(tools []Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		schema := t.Parameters()
		props := make(map[string]jsonschema.Definition, len(schema.Properties))
		for name, p := range schema.Properties {
			props[name] = jsonschema.Definition{ //nolint:exhaustruct // this is better for readability
				Type:        jsonschema.DataType(p.Type),
				Description: p.Description,
			}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{ //nolint:exhaustruct // this is better for readability
				Name:        t.Name(),
				Description: t.Description(),
				Parameters: jsonschema.Definition{ //nolint:exhaustruct // this is better for readability
					Type:       jsonschema.Object,
					Properties: props,
					Required:   schema.Required,
				},
			},
		})
	}
	return out
}
