package pipeline_test

import (
	"github.com/myrjola/vera/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestParseTemplate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr error
	}{
		{name: "no placeholders", text: "plain", want: "plain", wantErr: nil},
		{name: "both placeholders", text: "Now {currentTime}, in {language}.",
			want: "Now 2025-03-14 09:26:53 UTC, in Polski.", wantErr: nil},
		{name: "json braces are kept", text: `{"score": 1} {currentTime}`,
			want: `{"score": 1} 2025-03-14 09:26:53 UTC`, wantErr: nil},
		{name: "unknown placeholder", text: "Hello {user}", want: "", wantErr: pipeline.ErrUnknownPlaceholder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := pipeline.ParseTemplate(tt.text)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			got := tmpl.Render(pipeline.TemplateValues{CurrentTime: fixedNow, Language: pipeline.LanguagePolish})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatTime(t *testing.T) {
	warsaw := time.FixedZone("CET", 3600)
	assert.Equal(t, "2025-03-14 09:26:53 UTC", pipeline.FormatTime(fixedNow.In(warsaw)))
}

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		in      string
		want    pipeline.Language
		wantErr bool
	}{
		{in: "", want: pipeline.LanguageEnglish, wantErr: false},
		{in: "EN", want: pipeline.LanguageEnglish, wantErr: false},
		{in: "English", want: pipeline.LanguageEnglish, wantErr: false},
		{in: "pl", want: pipeline.LanguagePolish, wantErr: false},
		{in: "Polski", want: pipeline.LanguagePolish, wantErr: false},
		{in: "klingon", want: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := pipeline.ParseLanguage(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, pipeline.ErrUnknownLanguage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewInvestigationRequest(t *testing.T) {
	_, err := pipeline.NewInvestigationRequest("  \n ", pipeline.LanguageEnglish, fixedNow)
	require.ErrorIs(t, err, pipeline.ErrEmptyInput)

	req, err := pipeline.NewInvestigationRequest("claim", "", fixedNow.In(time.FixedZone("X", 7200)))
	require.NoError(t, err)
	assert.Equal(t, pipeline.LanguageEnglish, req.Language)
	assert.Equal(t, time.UTC, req.SubmittedAt.Location())
}

func TestValidateStages(t *testing.T) {
	noInput := testStages("a")
	noInput[0].Input = nil
	twoStreaming := testStages("a", "b")
	twoStreaming[0].Streams = true

	tests := []struct {
		name   string
		stages []pipeline.Stage
		valid  bool
	}{
		{name: "valid", stages: testStages("a", "b"), valid: true},
		{name: "empty", stages: nil, valid: false},
		{name: "unnamed", stages: testStages(""), valid: false},
		{name: "duplicate", stages: testStages("a", "a"), valid: false},
		{name: "no input builder", stages: noInput, valid: false},
		{name: "two streaming stages", stages: twoStreaming, valid: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pipeline.ValidateStages(tt.stages)
			if tt.valid {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, pipeline.ErrInvalidPipeline)
		})
	}
}
