package config

import (
	"github.com/myrjola/vera/internal/envstruct"
	"github.com/myrjola/vera/internal/errors"
	"log/slog"
)

var ErrMissingAPIKey = errors.NewSentinel("missing API key")

// Env holds secrets and deployment settings read from the environment.
type Env struct {
	OpenAIAPIKey string `env:"OPENAI_API_KEY" envDefault:""`
	GeminiAPIKey string `env:"GEMINI_API_KEY" envDefault:""`
	// GoogleAPIKey authenticates Custom Search and serves as the Gemini key when GEMINI_API_KEY is unset.
	GoogleAPIKey string `env:"GOOGLE_API_KEY" envDefault:""`
	GoogleCSEID  string `env:"GOOGLE_CSE_ID" envDefault:""`
	// Base URLs point the providers at compatible gateways.
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:""`
	GeminiBaseURL string `env:"GEMINI_BASE_URL" envDefault:""`
	// Provider overrides the provider of the YAML configuration.
	Provider   string `env:"VERA_PROVIDER" envDefault:""`
	ConfigPath string `env:"VERA_CONFIG" envDefault:""`
	Addr       string `env:"VERA_ADDR" envDefault:"localhost:4000"`
	SqliteURL  string `env:"VERA_SQLITE_URL" envDefault:"./vera.sqlite"`
	PprofAddr  string `env:"VERA_PPROF_ADDR" envDefault:""`
	LogLevel   string `env:"VERA_LOG_LEVEL" envDefault:"info"`
	LogFormat  string `env:"VERA_LOG_FORMAT" envDefault:"text"`
	// OTLPEndpoint enables trace and log export when set.
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTLPHeaders  string `env:"OTEL_EXPORTER_OTLP_HEADERS" envDefault:""`
}

// LoadEnv reads Env with lookupEnv, which has the signature of [os.LookupEnv].
func LoadEnv(lookupEnv func(string) (string, bool)) (Env, error) {
	var env Env
	if err := envstruct.Populate(&env, lookupEnv); err != nil {
		return Env{}, errors.Wrap(err, "populate env")
	}
	if env.GeminiAPIKey == "" {
		env.GeminiAPIKey = env.GoogleAPIKey
	}
	return env, nil
}

// LoadAll reads the environment and the YAML configuration it points to. VERA_PROVIDER overrides the provider.
func LoadAll(lookupEnv func(string) (string, bool), configPath string) (Env, *Config, error) {
	env, err := LoadEnv(lookupEnv)
	if err != nil {
		return Env{}, nil, err
	}
	if configPath == "" {
		configPath = env.ConfigPath
	}
	cfg, err := Load(configPath)
	if err != nil {
		return Env{}, nil, err
	}
	if env.Provider != "" {
		cfg.Provider = env.Provider
		if err = cfg.Validate(); err != nil {
			return Env{}, nil, err
		}
	}
	return env, cfg, nil
}

// APIKey returns the key of provider or ErrMissingAPIKey.
func (e Env) APIKey(provider string) (string, error) {
	key := e.GeminiAPIKey
	if provider == ProviderOpenAI {
		key = e.OpenAIAPIKey
	}
	if key == "" {
		return "", errors.Wrap(ErrMissingAPIKey, "resolve API key", slog.String("provider", provider))
	}
	return key, nil
}
