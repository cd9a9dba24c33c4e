// Package config loads the pipeline settings from YAML and the secrets and addresses from the environment.
package config

import (
	_ "embed"
	"github.com/myrjola/vera/internal/ai"
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/pipeline"
	"github.com/myrjola/vera/internal/stages"
	"gopkg.in/yaml.v3"
	"log/slog"
	"os"
	"slices"
	"time"
)

//go:embed default.yaml
var DefaultYAML []byte

var ErrInvalidConfig = errors.NewSentinel("invalid config")

// Providers of text generation.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	Provider  string    `yaml:"provider"`
	Models    Models    `yaml:"models"`
	Stages    Stages    `yaml:"stages"`
	Retry     Retry     `yaml:"retry"`
	Context   Context   `yaml:"context"`
	Critic    Critic    `yaml:"critic"`
	Wikipedia Wikipedia `yaml:"wikipedia"`
	Search    Search    `yaml:"search"`
	Extractor Extractor `yaml:"extractor"`
}

type Models struct {
	Gemini string `yaml:"gemini"`
	OpenAI string `yaml:"openai"`
}

type Stages struct {
	Timeout                 time.Duration            `yaml:"timeout"`
	Timeouts                map[string]time.Duration `yaml:"timeouts"`
	MaxOutputTokens         int                      `yaml:"max_output_tokens"`
	MaxOutputTokensPerStage map[string]int           `yaml:"max_output_tokens_per_stage"`
}

type Retry struct {
	Attempts     int           `yaml:"attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	StatusCodes  []int         `yaml:"status_codes"`
}

type Context struct {
	MaxChars int `yaml:"max_chars"`
}

type Critic struct {
	TrustedCitationPatterns []string `yaml:"trusted_citation_patterns"`
}

type Wikipedia struct {
	Language  string `yaml:"language"`
	Sentences int    `yaml:"sentences"`
}

type Search struct {
	MaxResults int `yaml:"max_results"`
}

type Extractor struct {
	Timeout          time.Duration `yaml:"timeout"`
	MaxChars         int           `yaml:"max_chars"`
	MinReadableChars int           `yaml:"min_readable_chars"`
	UserAgent        string        `yaml:"user_agent"`
}

// Default returns the embedded defaults.
func Default() (*Config, error) {
	return Parse(nil)
}

// Load applies the YAML file at path on top of the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config", slog.String("path", path))
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, "parse config", slog.String("path", path))
	}
	return cfg, nil
}

// Parse applies data on top of the defaults and validates the result. Maps are merged, lists are replaced.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(DefaultYAML, &cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal defaults")
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "unmarshal config")
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and stage names.
func (c *Config) Validate() error {
	invalid := func(msg string, attrs ...slog.Attr) error {
		return errors.Wrap(ErrInvalidConfig, msg, attrs...)
	}
	if c.Provider != ProviderGemini && c.Provider != ProviderOpenAI {
		return invalid("unknown provider", slog.String("provider", c.Provider))
	}
	if c.Stages.Timeout <= 0 {
		return invalid("stage timeout must be positive", slog.Duration("timeout", c.Stages.Timeout))
	}
	for name, d := range c.Stages.Timeouts {
		if !slices.Contains(stages.Names, name) {
			return invalid("timeout for unknown stage", slog.String("stage", name))
		}
		if d <= 0 {
			return invalid("stage timeout must be positive", slog.String("stage", name))
		}
	}
	for name := range c.Stages.MaxOutputTokensPerStage {
		if !slices.Contains(stages.Names, name) {
			return invalid("output budget for unknown stage", slog.String("stage", name))
		}
	}
	if c.Retry.Attempts < 1 {
		return invalid("retry attempts must be at least 1", slog.Int("attempts", c.Retry.Attempts))
	}
	if c.Retry.Multiplier < 1 {
		return invalid("retry multiplier must be at least 1", slog.Float64("multiplier", c.Retry.Multiplier))
	}
	if c.Wikipedia.Sentences < 1 || c.Wikipedia.Sentences > 10 {
		return invalid("wikipedia sentences must be between 1 and 10", slog.Int("sentences", c.Wikipedia.Sentences))
	}
	if c.Search.MaxResults < 1 || c.Search.MaxResults > 10 {
		return invalid("search max results must be between 1 and 10", slog.Int("max_results", c.Search.MaxResults))
	}
	if c.Extractor.Timeout <= 0 || c.Extractor.MaxChars <= 0 {
		return invalid("extractor timeout and max chars must be positive")
	}
	if err := c.StageConfig().Validate(); err != nil {
		return errors.Wrap(errors.Join(ErrInvalidConfig, err), "validate trusted citation patterns")
	}
	return nil
}

// RunConfiguration returns the settings threaded through one investigation.
func (c *Config) RunConfiguration() pipeline.RunConfiguration {
	return pipeline.RunConfiguration{
		StageTimeout:    c.Stages.Timeout,
		Context:         pipeline.TruncationPolicy{MaxChars: c.Context.MaxChars},
		MaxOutputTokens: c.Stages.MaxOutputTokens,
		Now:             time.Now,
	}
}

// StageConfig returns the customisation of the canonical stages.
func (c *Config) StageConfig() stages.Config {
	return stages.Config{
		TrustedCitationPatterns: c.Critic.TrustedCitationPatterns,
		Timeouts:                c.Stages.Timeouts,
		MaxOutputTokens:         c.Stages.MaxOutputTokensPerStage,
	}
}

func (c *Config) RetryPolicy() ai.RetryPolicy {
	return ai.RetryPolicy{
		Attempts:     c.Retry.Attempts,
		InitialDelay: c.Retry.InitialDelay,
		Multiplier:   c.Retry.Multiplier,
		StatusCodes:  c.Retry.StatusCodes,
	}
}

// Model returns the model name of the configured provider.
func (c *Config) Model() string {
	if c.Provider == ProviderOpenAI {
		return c.Models.OpenAI
	}
	return c.Models.Gemini
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "marshal config")
	}
	return out, nil
}
