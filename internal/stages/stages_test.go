package stages_test

import (
	"github.com/myrjola/vera/internal/ai"
	"github.com/myrjola/vera/internal/pipeline"
	"github.com/myrjola/vera/internal/stages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
	"time"
)

var submitted = time.Date(2025, 11, 2, 18, 0, 0, 0, time.UTC)

func session(t *testing.T, text string, lang pipeline.Language) *pipeline.SessionContext {
	t.Helper()
	req, err := pipeline.NewInvestigationRequest(text, lang, submitted)
	require.NoError(t, err)
	return pipeline.NewSessionContext(req)
}

func TestDefault(t *testing.T) {
	pipe := stages.Default(stages.DefaultConfig())
	require.NoError(t, pipeline.ValidateStages(pipe))

	names := make([]string, 0, len(pipe))
	for _, s := range pipe {
		names = append(names, s.Name)
	}
	assert.Equal(t, stages.Names, names)

	assert.Equal(t, []string{ai.CapabilityWebSearch}, pipe[0].Capabilities)
	assert.Equal(t, []string{ai.CapabilityWikipedia}, pipe[1].Capabilities)
	for i, s := range pipe {
		assert.Equal(t, i == len(pipe)-1, s.Streams, s.Name)
		if i > 1 {
			assert.Empty(t, s.Capabilities, s.Name)
		}
	}
}

func TestDefault_Overrides(t *testing.T) {
	cfg := stages.DefaultConfig()
	cfg.Timeouts = map[string]time.Duration{stages.Researcher: time.Minute}
	cfg.MaxOutputTokens = map[string]int{stages.Reporter: 8192}
	pipe := stages.Default(cfg)

	assert.Equal(t, time.Minute, pipe[0].Timeout)
	assert.Zero(t, pipe[1].Timeout)
	assert.Equal(t, 8192, pipe[5].MaxOutputTokens)
}

func TestInputs(t *testing.T) {
	s := session(t, "Breaking news: the earth is a cube", pipeline.LanguageEnglish)
	pipe := stages.Default(stages.DefaultConfig())

	researcher := pipe[0].Input(s, stages.Researcher)
	assert.Equal(t, pipeline.FrameRequest(s.Request()), researcher)

	// The librarian gets the original text again, not the researcher output.
	librarian := pipe[1].Input(s, stages.Librarian)
	assert.True(t, strings.HasPrefix(librarian, "Identify terms in the original text"))
	assert.Contains(t, librarian, "<<<USER_INPUT_START>>>\nBreaking news: the earth is a cube\n<<<USER_INPUT_END>>>")

	for _, st := range pipe[2:5] {
		assert.NotContains(t, st.Input(s, st.Name), "the earth is a cube", st.Name)
	}
}

func TestReporterSections(t *testing.T) {
	tests := []struct {
		lang  pipeline.Language
		first string
		last  string
	}{
		{lang: pipeline.LanguageEnglish, first: "# VERA Analysis Report", last: "## 7. Conclusion"},
		{lang: pipeline.LanguagePolish, first: "# Raport Analizy VERA", last: "## 7. Wnioski"},
	}
	for _, tt := range tests {
		t.Run(string(tt.lang), func(t *testing.T) {
			sections := stages.ReportSections(tt.lang)
			require.Len(t, sections, 8)
			assert.Equal(t, tt.first, sections[0])
			assert.Equal(t, tt.last, sections[7])

			pipe := stages.Default(stages.DefaultConfig())
			input := pipe[5].Input(session(t, "claim", tt.lang), stages.Reporter)
			for _, h := range sections {
				assert.Contains(t, input, h)
			}
			instruction := pipe[5].Instruction.Render(pipeline.TemplateValues{CurrentTime: submitted, Language: tt.lang})
			assert.Contains(t, instruction, "Write the ENTIRE report in "+tt.lang.DisplayName())
		})
	}
}

func TestCriticAllowList(t *testing.T) {
	cfg := stages.DefaultConfig()
	pipe := stages.Default(cfg)
	critic := pipe[3].Instruction.Text()
	assert.Contains(t, critic, "vertexaisearch.cloud.google.com")
	assert.Contains(t, critic, "grounding-api-redirect")

	cfg.TrustedCitationPatterns = []string{`URLs on "archive.example.org"`}
	critic = stages.Default(cfg)[3].Instruction.Text()
	assert.Contains(t, critic, "archive.example.org")
	assert.NotContains(t, critic, "vertexaisearch")

	cfg.TrustedCitationPatterns = []string{"{hostname}"}
	require.ErrorIs(t, cfg.Validate(), pipeline.ErrUnknownPlaceholder)
}

func TestScoringLabels(t *testing.T) {
	scoring := stages.Default(stages.DefaultConfig())[4].Instruction.Text()
	for _, label := range []string{"Disinformation Level", "Manipulation Level", "Analysis Confidence"} {
		assert.Contains(t, scoring, label)
	}
}

func TestResearcherCorroboration(t *testing.T) {
	researcher := stages.Default(stages.DefaultConfig())[0]
	assert.Contains(t, researcher.Instruction.Text(),
		"Never cite a URL that the text itself presents as the thing to verify. Find independent corroboration instead.")

	const flagged = "https://totally-real-news.example/cube-earth"
	s := session(t, "Please verify this article: "+flagged+" It says the earth is a cube.", pipeline.LanguageEnglish)
	input := researcher.Input(s, stages.Researcher)
	start := strings.Index(input, pipeline.UserInputStart)
	end := strings.LastIndex(input, pipeline.UserInputEnd)
	at := strings.Index(input, flagged)
	require.NotEqual(t, -1, at)
	assert.Less(t, start, at, "the flagged URL is framed as data")
	assert.Less(t, at, end, "the flagged URL is framed as data")
	assert.Equal(t, 1, strings.Count(input, flagged))
}
