package pipeline

import (
	"github.com/myrjola/vera/internal/errors"
	"log/slog"
	"strings"
	"time"
)

var (
	ErrEmptyInput      = errors.NewSentinel("input text is empty")
	ErrUnknownLanguage = errors.NewSentinel("unknown language")
)

// Language selects the language of the framing prefix and the final report.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguagePolish  Language = "pl"
)

// ParseLanguage accepts ISO codes and language names in English or Polish.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "en", "english":
		return LanguageEnglish, nil
	case "pl", "polski", "polish":
		return LanguagePolish, nil
	default:
		return "", errors.Wrap(ErrUnknownLanguage, "parse language", slog.String("language", s))
	}
}

// DisplayName is the name the models see, e.g. in the {language} placeholder.
func (l Language) DisplayName() string {
	if l == LanguagePolish {
		return "Polski"
	}
	return "English"
}

// InvestigationRequest is the text to investigate. URL inputs are resolved to their extracted content before a
// request is created.
type InvestigationRequest struct {
	RawText     string
	Language    Language
	SubmittedAt time.Time
}

func NewInvestigationRequest(raw string, lang Language, now time.Time) (InvestigationRequest, error) {
	if strings.TrimSpace(raw) == "" {
		return InvestigationRequest{}, ErrEmptyInput
	}
	if lang == "" {
		lang = LanguageEnglish
	}
	return InvestigationRequest{
		RawText:     raw,
		Language:    lang,
		SubmittedAt: now.UTC(),
	}, nil
}

// RunConfiguration is threaded through every run.
type RunConfiguration struct {
	// StageTimeout bounds every stage that does not declare its own timeout.
	StageTimeout time.Duration
	// Context bounds the rendered conversation history.
	Context TruncationPolicy
	// MaxOutputTokens is forwarded to the generator. Zero uses the generator default.
	MaxOutputTokens int
	// Now is the clock for stage start times.
	Now func() time.Time
}

// DefaultStageTimeout bounds a stage when nothing else is configured.
const DefaultStageTimeout = 300 * time.Second

// DefaultRunConfiguration returns the configuration used when none is given.
func DefaultRunConfiguration() RunConfiguration {
	return RunConfiguration{
		StageTimeout:    DefaultStageTimeout,
		Context:         TruncationPolicy{MaxChars: DefaultContextChars},
		MaxOutputTokens: 0,
		Now:             time.Now,
	}
}

func (c RunConfiguration) withDefaults() RunConfiguration {
	if c.StageTimeout <= 0 {
		c.StageTimeout = DefaultStageTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
