package report_test

import (
	"github.com/myrjola/vera/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestParseScores(t *testing.T) {
	tests := []struct {
		name        string
		texts       []string
		want        report.Scores
		wantMissing []string
	}{
		{
			name:  "plain labels",
			texts: []string{"Disinformation Level: 9\nManipulation Level: 6\nAnalysis Confidence: 8"},
			want:  report.Scores{Disinformation: 9, Manipulation: 6, Confidence: 8},
		},
		{
			name:  "markdown report",
			texts: []string{"- **Disinformation Level**: 10/10\n- **Manipulation Level**: 7/10\n- **Confidence**: 9/10"},
			want:  report.Scores{Disinformation: 10, Manipulation: 7, Confidence: 9},
		},
		{
			name:  "polish labels",
			texts: []string{"**Poziom Dezinformacji**: 3/10\n**Poziom Manipulacji**: 2/10\n**Pewność Analizy**: 7/10"},
			want:  report.Scores{Disinformation: 3, Manipulation: 2, Confidence: 7},
		},
		{
			name:  "scale before the value",
			texts: []string{"Disinformation Level (1-10): 8\nManipulation Level [1-10]: 7\n**Confidence** (1-10): 9"},
			want:  report.Scores{Disinformation: 8, Manipulation: 7, Confidence: 9},
		},
		{
			name:        "out of range and missing",
			texts:       []string{"Disinformation Level: 42\nManipulation Level: 0"},
			want:        report.Scores{Disinformation: 0, Manipulation: 0, Confidence: 0},
			wantMissing: []string{report.ScoreDisinformation, report.ScoreManipulation, report.ScoreConfidence},
		},
		{
			name:        "later texts fill gaps",
			texts:       []string{"Disinformation Level: 4", "Disinformation Level: 9\nManipulation Level: 5"},
			want:        report.Scores{Disinformation: 4, Manipulation: 5, Confidence: 0},
			wantMissing: []string{report.ScoreConfidence},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := report.ParseScores(tt.texts...)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantMissing, got.Missing())
			assert.Equal(t, len(tt.wantMissing) == 0, got.Complete())
		})
	}
}

func TestSection(t *testing.T) {
	md := "# VERA Analysis Report\n\n## 1. Executive Summary\nFalse.\n\n## 7. Conclusion\nDo not share.\n\n### Note\nMore."
	assert.Equal(t, "False.", report.Section(md, "executive summary"))
	assert.Equal(t, "Do not share.\n\n### Note\nMore.", report.Section(md, "Conclusion"))
	assert.Empty(t, report.Section(md, "Wnioski"))
}

func TestNew(t *testing.T) {
	r := report.New("**Disinformation Level**: 2/10", "Manipulation Level: 3\nAnalysis Confidence: 4")
	assert.Equal(t, report.Scores{Disinformation: 2, Manipulation: 3, Confidence: 4}, r.Scores)
}

func TestRenderHTML(t *testing.T) {
	out, err := report.RenderHTML("# Report\n\n| Claim | Verdict |\n|---|---|\n| cube | False |\n\n<script>alert(1)</script>")
	require.NoError(t, err)
	html := string(out)
	assert.Contains(t, html, "<h1>Report</h1>")
	assert.Contains(t, html, "<table>")
	assert.NotContains(t, html, "<script>")
}
