package config_test

import (
	"github.com/myrjola/vera/internal/config"
	"github.com/myrjola/vera/internal/stages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)

	assert.Equal(t, config.ProviderGemini, cfg.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model())

	run := cfg.RunConfiguration()
	assert.Equal(t, 300*time.Second, run.StageTimeout)
	assert.Equal(t, 120000, run.Context.MaxChars)
	require.NotNil(t, run.Now)

	policy := cfg.RetryPolicy()
	assert.Equal(t, 5, policy.Attempts)
	assert.Equal(t, time.Second, policy.InitialDelay)
	assert.InDelta(t, 7.0, policy.Multiplier, 0.001)
	assert.Equal(t, []int{429, 500, 503, 504}, policy.StatusCodes)

	assert.Equal(t, stages.DefaultTrustedCitationPatterns, cfg.Critic.TrustedCitationPatterns)
	assert.Equal(t, 3, cfg.Wikipedia.Sentences)
	assert.Equal(t, 10000, cfg.Extractor.MaxChars)
	assert.Equal(t, 10*time.Second, cfg.Extractor.Timeout)
	assert.Equal(t, 8192, cfg.StageConfig().MaxOutputTokens[stages.Reporter])
}

func TestParse_Overlay(t *testing.T) {
	cfg, err := config.Parse([]byte(`
provider: openai
stages:
  timeouts:
    researcher: 2m
critic:
  trusted_citation_patterns:
    - URLs on "proxy.example.org"
`))
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.Model())
	assert.Equal(t, 300*time.Second, cfg.Stages.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.StageConfig().Timeouts[stages.Researcher])
	assert.Equal(t, 8192, cfg.Stages.MaxOutputTokensPerStage[stages.Reporter])
	assert.Equal(t, []string{`URLs on "proxy.example.org"`}, cfg.Critic.TrustedCitationPatterns)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "provider", yaml: "provider: llama"},
		{name: "unknown stage timeout", yaml: "stages:\n  timeouts:\n    poet: 1m"},
		{name: "negative timeout", yaml: "stages:\n  timeout: -1s"},
		{name: "sentences", yaml: "wikipedia:\n  sentences: 11"},
		{name: "retry attempts", yaml: "retry:\n  attempts: 0"},
		{name: "placeholder in pattern", yaml: "critic:\n  trusted_citation_patterns: ['{host}']"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.yaml))
			require.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vera.yaml")
	require.NoError(t, os.WriteFile(path, []byte("context:\n  max_chars: 5000\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.RunConfiguration().Context.MaxChars)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	out, err := cfg.YAML()
	require.NoError(t, err)
	roundTrip, err := config.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, cfg, roundTrip)
}

func TestLoadAll(t *testing.T) {
	vars := map[string]string{
		"GOOGLE_API_KEY": "google-key",
		"VERA_PROVIDER":  "openai",
	}
	lookup := func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
	env, cfg, err := config.LoadAll(lookup, "")
	require.NoError(t, err)

	assert.Equal(t, "google-key", env.GeminiAPIKey)
	assert.Equal(t, "localhost:4000", env.Addr)
	assert.Equal(t, config.ProviderOpenAI, cfg.Provider)

	_, err = env.APIKey(config.ProviderOpenAI)
	require.ErrorIs(t, err, config.ErrMissingAPIKey)
	key, err := env.APIKey(config.ProviderGemini)
	require.NoError(t, err)
	assert.Equal(t, "google-key", key)
}
