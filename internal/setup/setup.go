// Package setup assembles the pipeline collaborators from the environment and the YAML configuration. The
// binaries share it so that the CLI and the web service run identical investigations.
package setup

import (
	"context"
	"github.com/myrjola/vera/internal/ai"
	"github.com/myrjola/vera/internal/capability"
	"github.com/myrjola/vera/internal/config"
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/extract"
	"github.com/myrjola/vera/internal/logging"
	"github.com/myrjola/vera/internal/pipeline"
	"github.com/myrjola/vera/internal/stages"
	"google.golang.org/api/option"
	"io"
	"log/slog"
)

var ErrMissingSearchEngine = errors.NewSentinel("web search requires GOOGLE_CSE_ID and GOOGLE_API_KEY")

// Toolbox returns the tools that back stage capabilities. Web search is left out for Gemini, which grounds
// with Google Search natively.
func Toolbox(ctx context.Context, env config.Env, cfg *config.Config) (ai.Toolbox, error) {
	wiki, err := capability.NewWikipedia(capability.WikipediaOptions{ //nolint:exhaustruct // defaults are fine
		Language:         cfg.Wikipedia.Language,
		DefaultSentences: cfg.Wikipedia.Sentences,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new wikipedia")
	}
	if cfg.Provider == config.ProviderGemini {
		return ai.NewToolbox(wiki), nil
	}

	if env.GoogleCSEID == "" || env.GoogleAPIKey == "" {
		return nil, errors.Wrap(ErrMissingSearchEngine, "configure web search",
			slog.String("provider", cfg.Provider))
	}
	search, err := capability.NewWebSearch(ctx, env.GoogleCSEID, cfg.Search.MaxResults,
		option.WithAPIKey(env.GoogleAPIKey))
	if err != nil {
		return nil, errors.Wrap(err, "new web search")
	}
	return ai.NewToolbox(search, wiki), nil
}

// Generator returns the configured provider wrapped in the retry policy.
func Generator(ctx context.Context, env config.Env, cfg *config.Config, logger *slog.Logger) (ai.Generator, error) {
	key, err := env.APIKey(cfg.Provider)
	if err != nil {
		return nil, err //nolint:wrapcheck // already wrapped
	}
	tools, err := Toolbox(ctx, env, cfg)
	if err != nil {
		return nil, err
	}

	var gen ai.Generator
	switch cfg.Provider {
	case config.ProviderOpenAI:
		gen = ai.NewOpenAIGenerator(key, ai.OpenAIOptions{
			Model:           cfg.Models.OpenAI,
			BaseURL:         env.OpenAIBaseURL,
			MaxOutputTokens: cfg.Stages.MaxOutputTokens,
			Tools:           tools,
			Logger:          logger,
		})
	default:
		if gen, err = ai.NewGeminiGenerator(ctx, key, ai.GeminiOptions{
			Model:           cfg.Models.Gemini,
			BaseURL:         env.GeminiBaseURL,
			MaxOutputTokens: cfg.Stages.MaxOutputTokens,
			Tools:           tools,
			Logger:          logger,
		}); err != nil {
			return nil, errors.Wrap(err, "new gemini generator")
		}
	}
	return ai.NewRetrying(gen, cfg.RetryPolicy(), logger), nil
}

// Orchestrator returns an orchestrator configured by cfg. Observers are notified in the given order.
func Orchestrator(
	gen ai.Generator,
	cfg *config.Config,
	logger *slog.Logger,
	observers ...pipeline.Observer,
) *pipeline.Orchestrator {
	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	for _, o := range observers {
		opts = append(opts, pipeline.WithObserver(o))
	}
	return pipeline.New(gen, cfg.RunConfiguration(), opts...)
}

// Stages returns the canonical pipeline customised by cfg.
func Stages(cfg *config.Config) []pipeline.Stage {
	return stages.Default(cfg.StageConfig())
}

func Extractor(cfg *config.Config, logger *slog.Logger) *extract.Extractor {
	return extract.New(extract.Options{ //nolint:exhaustruct // the default HTTP client is fine
		Timeout:          cfg.Extractor.Timeout,
		MaxChars:         cfg.Extractor.MaxChars,
		MinReadableChars: cfg.Extractor.MinReadableChars,
		UserAgent:        cfg.Extractor.UserAgent,
		Logger:           logger,
	})
}

// CommandLogger builds the logger of a command line run. It logs warnings and errors to w unless verbose is set,
// in which case VERA_LOG_LEVEL applies.
func CommandLogger(w io.Writer, env config.Env, verbose bool) (*slog.Logger, error) {
	level := "warn"
	if verbose {
		level = env.LogLevel
	}
	logger, err := logging.NewLogger(w, logging.Options{
		Level:          level,
		Format:         env.LogFormat,
		AddSource:      false,
		LoggerProvider: nil,
		ServiceName:    "vera-cli",
	})
	if err != nil {
		return nil, errors.Wrap(err, "new logger")
	}
	return logger, nil
}
