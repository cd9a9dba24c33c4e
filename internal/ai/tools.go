package ai

import (
	"context"
	"encoding/json"
	"github.com/myrjola/vera/internal/errors"
	"log/slog"
	"slices"
	"sort"
)

var ErrUnknownCapability = errors.NewSentinel("unknown capability")

// ToolProperty describes one argument of a tool.
type ToolProperty struct {
	// Type is a JSON schema type: string, integer, number or boolean.
	Type        string
	Description string
}

// ToolSchema is the argument schema of a tool.
type ToolSchema struct {
	Properties map[string]ToolProperty
	Required   []string
}

// Tool is an external capability the model can call during a generation.
type Tool interface {
	Name() string
	Description() string
	Parameters() ToolSchema
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Toolbox maps capability names to tools.
type Toolbox map[string]Tool

// NewToolbox registers tools under their names.
func NewToolbox(tools ...Tool) Toolbox {
	tb := make(Toolbox, len(tools))
	for _, t := range tools {
		tb[t.Name()] = t
	}
	return tb
}

// Resolve returns the tools for capabilities in a stable order. Capabilities listed in native are served by the
// backend itself and skipped.
func (tb Toolbox) Resolve(capabilities []string, native ...string) ([]Tool, error) {
	var tools []Tool
	for _, name := range capabilities {
		if slices.Contains(native, name) {
			continue
		}
		tool, ok := tb[name]
		if !ok {
			return nil, errors.Wrap(ErrUnknownCapability, "resolve tool", slog.String("capability", name))
		}
		tools = append(tools, tool)
	}
	sort.SliceStable(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools, nil
}

// invoke runs the named tool with JSON encoded arguments. Tool errors are returned to the model as text so
// that it can recover, e.g. by rephrasing a search query.
func (tb Toolbox) invoke(ctx context.Context, logger *slog.Logger, name, rawArgs string) string {
	tool, ok := tb[name]
	if !ok {
		return "Error: unknown tool " + name
	}
	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "Error: arguments are not valid JSON: " + err.Error()
		}
	}
	return tb.call(ctx, logger, tool, args)
}

func (tb Toolbox) call(ctx context.Context, logger *slog.Logger, tool Tool, args map[string]any) string {
	out, err := tool.Call(ctx, args)
	if err != nil {
		err = errors.Wrap(err, "call tool", slog.String("tool", tool.Name()))
		logger.LogAttrs(ctx, slog.LevelWarn, "tool call failed", errors.SlogError(err))
		return "Error: " + err.Error()
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "tool call finished",
		slog.String("tool", tool.Name()), slog.Int("output_chars", len(out)))
	return out
}

// StringArg reads a string argument.
func StringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// IntArg reads an integer argument. JSON numbers arrive as float64; strings are not accepted.
func IntArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	default:
		return fallback
	}
}
