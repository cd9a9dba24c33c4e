// Package stages defines the six analysis stages of an investigation.
package stages

import (
	"fmt"
	"github.com/myrjola/vera/internal/ai"
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/pipeline"
	"strings"
	"time"
)

// Stage names in execution order.
const (
	Researcher = "researcher"
	Librarian  = "librarian"
	Analyst    = "analyst"
	Critic     = "critic"
	Scoring    = "scoring"
	Reporter   = "reporter"
)

// Names lists the stages in execution order.
var Names = []string{Researcher, Librarian, Analyst, Critic, Scoring, Reporter}

// DefaultTrustedCitationPatterns are the search grounding redirect URLs the critic must not flag.
var DefaultTrustedCitationPatterns = []string{
	`URLs starting with "vertexaisearch.cloud.google.com"`,
	`URLs containing "grounding-api-redirect"`,
}

// Config customises the stage definitions.
type Config struct {
	// TrustedCitationPatterns describe citation URLs that the critic treats as trustworthy.
	TrustedCitationPatterns []string
	// Timeouts override the run wide stage timeout per stage name.
	Timeouts map[string]time.Duration
	// MaxOutputTokens override the run wide output budget per stage name.
	MaxOutputTokens map[string]int
}

func DefaultConfig() Config {
	return Config{
		TrustedCitationPatterns: DefaultTrustedCitationPatterns,
		Timeouts:                nil,
		MaxOutputTokens:         nil,
	}
}

// Validate checks that the trusted citation patterns do not break the critic instruction.
func (c Config) Validate() error {
	if _, err := pipeline.ParseTemplate(criticInstruction(c.TrustedCitationPatterns)); err != nil {
		return errors.Wrap(err, "parse critic instruction")
	}
	return nil
}

// Default returns the canonical pipeline. Config must be valid. Only the reporter streams.
func Default(cfg Config) []pipeline.Stage {
	stages := []pipeline.Stage{ //nolint:exhaustruct // timeouts and budgets are set below
		{
			Name:         Researcher,
			Instruction:  pipeline.MustParseTemplate(researcherInstruction),
			Capabilities: []string{ai.CapabilityWebSearch},
			Input:        frameInput,
		},
		{
			Name:         Librarian,
			Instruction:  pipeline.MustParseTemplate(librarianInstruction),
			Capabilities: []string{ai.CapabilityWikipedia},
			Input:        librarianInput,
		},
		{
			Name:        Analyst,
			Instruction: pipeline.MustParseTemplate(analystInstruction),
			Input:       directive("Analyze the text, research findings, and librarian context above for manipulation."),
		},
		{
			Name:        Critic,
			Instruction: pipeline.MustParseTemplate(criticInstruction(cfg.TrustedCitationPatterns)),
			Input:       directive("Review the research, librarian report, and analysis above. Provide a critique."),
		},
		{
			Name:        Scoring,
			Instruction: pipeline.MustParseTemplate(scoringInstruction),
			Input:       directive("Based on all findings above, provide scores."),
		},
		{
			Name:        Reporter,
			Instruction: pipeline.MustParseTemplate(reporterInstruction),
			Input:       reporterInput,
			Streams:     true,
		},
	}
	for i := range stages {
		stages[i].Timeout = cfg.Timeouts[stages[i].Name]
		stages[i].MaxOutputTokens = cfg.MaxOutputTokens[stages[i].Name]
	}
	return stages
}

// frameInput wraps the investigated text in the security framing.
func frameInput(session *pipeline.SessionContext, _ string) string {
	return pipeline.FrameRequest(session.Request())
}

// librarianInput re-supplies the original text instead of relying on the researcher output.
func librarianInput(session *pipeline.SessionContext, _ string) string {
	return "Identify terms in the original text that need definition and search Wikipedia.\n\n" +
		pipeline.FrameRequest(session.Request())
}

func directive(text string) pipeline.InputBuilder {
	return func(*pipeline.SessionContext, string) string {
		return text
	}
}

func reporterInput(session *pipeline.SessionContext, _ string) string {
	lang := session.Request().Language
	return fmt.Sprintf("Synthesize all findings above into the final report. Write it in %s using exactly these "+
		"section headers:\n%s", lang.DisplayName(), strings.Join(ReportSections(lang), "\n"))
}

// ReportSections returns the markdown headers of the final report in lang.
func ReportSections(lang pipeline.Language) []string {
	if lang == pipeline.LanguagePolish {
		return []string{
			"# Raport Analizy VERA",
			"## 1. Podsumowanie Wykonawcze",
			"## 2. Ocena Ilościowa",
			"## 3. Weryfikacja Faktów",
			"## 4. Kontekst i Tło",
			"## 5. Analiza Manipulacji",
			"## 6. Przegląd Krytyczny",
			"## 7. Wnioski",
		}
	}
	return []string{
		"# VERA Analysis Report",
		"## 1. Executive Summary",
		"## 2. Quantitative Assessment",
		"## 3. Factual Verification",
		"## 4. Context & Background",
		"## 5. Manipulation Analysis",
		"## 6. Critical Review",
		"## 7. Conclusion",
	}
}
