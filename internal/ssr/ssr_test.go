package ssr_test

import (
	"github.com/myrjola/vera/internal/ssr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"html/template"
	"testing"
)

func TestDecorateReport(t *testing.T) {
	tests := []struct {
		name         string
		fragment     template.HTML
		wantHTML     template.HTML
		wantHeadings []ssr.Heading
	}{
		{
			name:     "numbers section headings",
			fragment: `<h1>VERA Analysis Report</h1><h2>1. Executive Summary</h2><p>ok</p>`,
			wantHTML: `<h1 id="vera-analysis-report">VERA Analysis Report</h1>` +
				`<h2 id="1-executive-summary">1. Executive Summary</h2><p>ok</p>`,
			wantHeadings: []ssr.Heading{{ID: "1-executive-summary", Title: "1. Executive Summary"}},
		},
		{
			name:         "keeps polish letters and deduplicates ids",
			fragment:     `<h2>7. Wnioski</h2><h2>7. Wnioski</h2>`,
			wantHTML:     `<h2 id="7-wnioski">7. Wnioski</h2><h2 id="7-wnioski-1">7. Wnioski</h2>`,
			wantHeadings: []ssr.Heading{{ID: "7-wnioski", Title: "7. Wnioski"}, {ID: "7-wnioski-1", Title: "7. Wnioski"}},
		},
		{
			name:     "opens external links in a new tab",
			fragment: `<p><a href="https://example.com">source</a> <a href="#top">top</a></p>`,
			wantHTML: `<p><a href="https://example.com" target="_blank" rel="noopener noreferrer nofollow">source</a>` +
				` <a href="#top">top</a></p>`,
			wantHeadings: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, headings, err := ssr.DecorateReport(tt.fragment)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHTML, got)
			assert.Equal(t, tt.wantHeadings, headings)
		})
	}
}
