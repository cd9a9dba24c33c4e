package pipeline

import (
	"github.com/myrjola/vera/internal/errors"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

var ErrUnknownPlaceholder = errors.NewSentinel("unknown template placeholder")

const (
	placeholderCurrentTime = "currentTime"
	placeholderLanguage    = "language"
)

// TimeLayout formats {currentTime}, e.g. "2025-01-31 14:05:09 UTC".
const TimeLayout = "2006-01-02 15:04:05 UTC"

// FormatTime renders t in UTC with TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

var placeholderRe = regexp.MustCompile(`\{([A-Za-z][A-Za-z0-9_]*)\}`)

// TemplateValues fill the placeholders of an InstructionTemplate.
type TemplateValues struct {
	CurrentTime time.Time
	Language    Language
}

// InstructionTemplate is a stage instruction with {currentTime} and {language} placeholders.
//
// Braces that do not enclose an identifier, e.g. JSON examples, are left alone.
type InstructionTemplate struct {
	text string
}

// ParseTemplate rejects placeholders other than {currentTime} and {language}.
func ParseTemplate(text string) (InstructionTemplate, error) {
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		switch m[1] {
		case placeholderCurrentTime, placeholderLanguage:
		default:
			return InstructionTemplate{}, errors.Wrap(ErrUnknownPlaceholder, "parse template",
				slog.String("placeholder", m[0]))
		}
	}
	return InstructionTemplate{text: text}, nil
}

// MustParseTemplate is like ParseTemplate but panics on error. Meant for package level stage definitions.
func MustParseTemplate(text string) InstructionTemplate {
	t, err := ParseTemplate(text)
	if err != nil {
		panic(err)
	}
	return t
}

// Render substitutes the placeholders. It has no side effects.
func (t InstructionTemplate) Render(v TemplateValues) string {
	r := strings.NewReplacer(
		"{"+placeholderCurrentTime+"}", FormatTime(v.CurrentTime),
		"{"+placeholderLanguage+"}", v.Language.DisplayName(),
	)
	return r.Replace(t.text)
}

// Text returns the unrendered template.
func (t InstructionTemplate) Text() string {
	return t.text
}
