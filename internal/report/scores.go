// Package report extracts structured data from the free text of an investigation and renders the final report.
package report

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	minScore = 1
	maxScore = 10
)

// Score names used by Scores.Missing.
const (
	ScoreDisinformation = "disinformation"
	ScoreManipulation   = "manipulation"
	ScoreConfidence     = "confidence"
)

// Scores are the three 1 to 10 ratings of the scoring stage. A zero value means the score was not found.
type Scores struct {
	Disinformation int `json:"disinformation,omitempty"`
	Manipulation   int `json:"manipulation,omitempty"`
	Confidence     int `json:"confidence,omitempty"`
}

// Complete reports whether all three scores were found.
func (s Scores) Complete() bool {
	return len(s.Missing()) == 0
}

// Missing lists the names of the scores that were not found.
func (s Scores) Missing() []string {
	var missing []string
	if s.Disinformation == 0 {
		missing = append(missing, ScoreDisinformation)
	}
	if s.Manipulation == 0 {
		missing = append(missing, ScoreManipulation)
	}
	if s.Confidence == 0 {
		missing = append(missing, ScoreConfidence)
	}
	return missing
}

// labelRe matches a label followed by its value. A parenthesised or bracketed scale such as "(1-10)" between
// the two is skipped.
func labelRe(labels ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:` + strings.Join(labels, "|") +
		`)[*_\s]*(?:\([^)\n]*\)|\[[^\]\n]*\])?[^0-9\n(\[]{0,20}(\d{1,2})`)
}

var (
	disinformationRe = labelRe(`disinformation\s+level`, `poziom\s+dezinformacji`)
	manipulationRe   = labelRe(`manipulation\s+level`, `poziom\s+manipulacji`)
	confidenceRe     = labelRe(`analysis\s+confidence`, `confidence`, `pewno(?:ść|sc)\s+analizy`)
)

// ParseScores reads the labelled scores from texts in order. The first valid occurrence of each label wins, so
// the output of the scoring stage should come before the report. Out of range values are ignored.
func ParseScores(texts ...string) Scores {
	var s Scores
	for _, text := range texts {
		if s.Disinformation == 0 {
			s.Disinformation = findScore(disinformationRe, text)
		}
		if s.Manipulation == 0 {
			s.Manipulation = findScore(manipulationRe, text)
		}
		if s.Confidence == 0 {
			s.Confidence = findScore(confidenceRe, text)
		}
	}
	return s
}

func findScore(re *regexp.Regexp, text string) int {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err == nil && n >= minScore && n <= maxScore {
			return n
		}
	}
	return 0
}

// Section returns the body of the markdown section whose header contains title, up to the next header of the
// same or a higher level. The match is case-insensitive.
func Section(markdown, title string) string {
	lines := strings.Split(markdown, "\n")
	start, level := -1, 0
	for i, line := range lines {
		hashes := headerLevel(line)
		if hashes == 0 {
			continue
		}
		if start >= 0 && hashes <= level {
			return strings.TrimSpace(strings.Join(lines[start:i], "\n"))
		}
		if start < 0 && strings.Contains(strings.ToLower(line), strings.ToLower(title)) {
			start, level = i+1, hashes
		}
	}
	if start < 0 {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[start:], "\n"))
}

func headerLevel(line string) int {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	if n == 0 || n == len(line) || line[n] != ' ' {
		return 0
	}
	return n
}

// InvestigationReport is the final markdown and the scores parsed from the run.
type InvestigationReport struct {
	Markdown string `json:"markdown"`
	Scores   Scores `json:"scores"`
}

// New builds the report from the final markdown. Scores are taken from scoringOutput first and from the
// markdown for the ones it lacks.
func New(markdown, scoringOutput string) InvestigationReport {
	return InvestigationReport{
		Markdown: markdown,
		Scores:   ParseScores(scoringOutput, markdown),
	}
}
