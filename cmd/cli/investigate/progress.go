package investigate

import (
	"fmt"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/pipeline"
	"github.com/myrjola/vera/internal/report"
	"io"
	"strings"
	"time"
)

var (
	stageStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Faint(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// progress prints stage progress to stderr and the report to stdout, so that the report can be piped to a file.
type progress struct {
	stdout   io.Writer
	stderr   io.Writer
	total    int
	renderer *glamour.TermRenderer
	// endsWithNewline tracks whether the streamed report needs a trailing newline.
	endsWithNewline bool
}

// newProgress returns a printer for a pipeline of total stages. When pretty is set the report is rendered for
// the terminal once complete instead of being streamed raw.
func newProgress(stdout, stderr io.Writer, total int, pretty bool) (*progress, error) {
	p := &progress{stdout: stdout, stderr: stderr, total: total, renderer: nil, endsWithNewline: true}
	if pretty {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100), //nolint:mnd // readable line length
		)
		if err != nil {
			return nil, errors.Wrap(err, "new markdown renderer")
		}
		p.renderer = renderer
	}
	return p, nil
}

func (p *progress) handle(ev pipeline.Event) error {
	var err error
	switch ev.Kind {
	case pipeline.EventStageStarted:
		_, err = fmt.Fprintf(p.stderr, "%s %s\n",
			mutedStyle.Render(fmt.Sprintf("[%d/%d]", ev.Index+1, p.total)), stageStyle.Render(ev.Stage))
	case pipeline.EventStageFinished:
		err = p.stageFinished(ev.Result)
	case pipeline.EventDelta:
		if p.renderer == nil {
			_, err = io.WriteString(p.stdout, ev.Text)
			p.endsWithNewline = strings.HasSuffix(ev.Text, "\n")
		}
	case pipeline.EventStreamCompleted:
		err = p.streamCompleted(ev.Text)
	case pipeline.EventFinished:
	}
	if err != nil {
		return errors.Wrap(err, "print event")
	}
	return nil
}

func (p *progress) stageFinished(result *pipeline.StageResult) error {
	if result == nil {
		return nil
	}
	took := result.Duration.Round(100 * time.Millisecond) //nolint:mnd // tenths of a second
	var line string
	switch result.Status {
	case pipeline.StageSucceeded:
		line = okStyle.Render("done") + mutedStyle.Render(" in "+took.String())
	case pipeline.StageTimedOut:
		line = warnStyle.Render("timed out") + mutedStyle.Render(" after "+took.String())
	case pipeline.StageFailed:
		line = badStyle.Render("failed") + ": " + result.Reason
	}
	_, err := fmt.Fprintf(p.stderr, "      %s %s\n", result.StageName, line)
	return err //nolint:wrapcheck // wrapped by handle
}

func (p *progress) streamCompleted(text string) error {
	if p.renderer == nil {
		if !p.endsWithNewline {
			_, err := io.WriteString(p.stdout, "\n")
			return err //nolint:wrapcheck // wrapped by handle
		}
		return nil
	}
	out, err := p.renderer.Render(text)
	if err != nil {
		return errors.Wrap(err, "render report")
	}
	_, err = io.WriteString(p.stdout, out)
	return err //nolint:wrapcheck // wrapped by handle
}

// summary prints the status of the run and the parsed scores.
func (p *progress) summary(outcome pipeline.Outcome, scores report.Scores) error {
	var b strings.Builder
	b.WriteString("\n")
	switch outcome.Status {
	case pipeline.StatusCompleted:
		b.WriteString(okStyle.Render("Investigation completed"))
	case pipeline.StatusTimedOut, pipeline.StatusCancelled:
		b.WriteString(warnStyle.Render("Investigation " + strings.ReplaceAll(string(outcome.Status), "_", " ")))
	case pipeline.StatusFailed:
		b.WriteString(badStyle.Render("Investigation failed"))
	}
	b.WriteString(mutedStyle.Render(fmt.Sprintf(" in %s (session %s)",
		outcome.Duration.Round(time.Second), outcome.SessionID)))
	b.WriteString("\n")
	if outcome.Reason != "" {
		b.WriteString(outcome.Reason + "\n")
	}
	if outcome.Status == pipeline.StatusCompleted {
		b.WriteString(scoreLine("Disinformation Level", scores.Disinformation, false))
		b.WriteString(scoreLine("Manipulation Level", scores.Manipulation, false))
		b.WriteString(scoreLine("Analysis Confidence", scores.Confidence, true))
		if missing := scores.Missing(); len(missing) > 0 {
			b.WriteString(warnStyle.Render("Missing scores: "+strings.Join(missing, ", ")) + "\n")
		}
	}
	_, err := io.WriteString(p.stderr, b.String())
	if err != nil {
		return errors.Wrap(err, "print summary")
	}
	return nil
}

// scoreLine colours a 1-10 score. Low scores are good unless higherIsBetter.
func scoreLine(label string, score int, higherIsBetter bool) string {
	if score == 0 {
		return fmt.Sprintf("%s: %s\n", label, mutedStyle.Render("n/a"))
	}
	severity := score
	if higherIsBetter {
		severity = 11 - score //nolint:mnd // mirrors the 1-10 scale
	}
	style := okStyle
	switch {
	case severity > 6: //nolint:mnd // upper third
		style = badStyle
	case severity > 3: //nolint:mnd // middle third
		style = warnStyle
	}
	return fmt.Sprintf("%s: %s\n", label, style.Render(fmt.Sprintf("%d/10", score)))
}
