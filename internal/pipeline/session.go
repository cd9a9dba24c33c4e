package pipeline

import (
	"fmt"
	"github.com/google/uuid"
	"github.com/myrjola/vera/internal/ai"
	"strings"
	"sync"
	"unicode/utf8"
)

// DefaultContextChars is the default character budget of the rendered history.
const DefaultContextChars = 120_000

const truncatedMarker = "\n[truncated]"

// Turn is one entry of the conversation history.
type Turn struct {
	Role  ai.Role
	Stage string
	Text  string
}

// TruncationPolicy bounds the rendered history. MaxChars <= 0 means unbounded.
type TruncationPolicy struct {
	MaxChars int
}

// SessionContext is the shared, append-only conversation history of one investigation.
type SessionContext struct {
	id      uuid.UUID
	request InvestigationRequest

	mu    sync.RWMutex
	turns []Turn
}

func NewSessionContext(req InvestigationRequest) *SessionContext {
	return &SessionContext{ //nolint:exhaustruct // zero values are fine
		id:      uuid.New(),
		request: req,
	}
}

func (s *SessionContext) ID() uuid.UUID {
	return s.id
}

// Request returns the request the session was created for.
func (s *SessionContext) Request() InvestigationRequest {
	return s.request
}

// AppendTurn is the only mutator of the history.
func (s *SessionContext) AppendTurn(role ai.Role, stage, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Role: role, Stage: stage, Text: text})
}

// Turns returns a copy of the history.
func (s *SessionContext) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Turn(nil), s.turns...)
}

func (s *SessionContext) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// RenderForStage renders the history followed by the pending input of the next stage as generation messages.
// Every stage sees the same history; model turns are labelled with the stage that produced them.
//
// The result fits policy: the first turn is always kept, whole turns after it are elided oldest first and
// replaced by a single marker, and when that is not enough the message with the most cuttable text is cut at
// its end. Framed user input is cut inside its delimiters only. The pending input is never elided. Rendering does not modify the session.
func (s *SessionContext) RenderForStage(input string, policy TruncationPolicy) []ai.Message {
	turns := s.Turns()
	messages := make([]ai.Message, 0, len(turns)+1)
	for _, t := range turns {
		content := t.Text
		if t.Role == ai.RoleModel {
			content = fmt.Sprintf("[%s]\n%s", t.Stage, t.Text)
		}
		messages = append(messages, ai.Message{Role: t.Role, Content: content})
	}
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: input})
	return truncate(messages, policy)
}

func omittedMarker(n int) string {
	return fmt.Sprintf("[... %d earlier turn(s) omitted to fit the context budget ...]", n)
}

func totalChars(messages []ai.Message) int {
	n := 0
	for _, m := range messages {
		n += utf8.RuneCountInString(m.Content)
	}
	return n
}

// truncate applies policy to messages whose last element is the pending input.
func truncate(messages []ai.Message, policy TruncationPolicy) []ai.Message {
	if policy.MaxChars <= 0 || totalChars(messages) <= policy.MaxChars {
		return messages
	}

	// Elide whole turns between the first turn and the pending input.
	if len(messages) > 2 { //nolint:mnd // first turn and pending input
		first, middle, pending := messages[0], messages[1:len(messages)-1], messages[len(messages)-1]
		omitted := 0
		for omitted < len(middle) {
			omitted++
			candidate := buildElided(first, middle[omitted:], pending, omitted)
			if totalChars(candidate) <= policy.MaxChars {
				return candidate
			}
		}
		messages = buildElided(first, nil, pending, omitted)
	}

	// Cut the messages with the most cuttable text until the budget holds.
	for excess := totalChars(messages) - policy.MaxChars; excess > 0; excess = totalChars(messages) - policy.MaxChars {
		best, bestLen := -1, 0
		for i, m := range messages {
			lo, hi, _ := cuttable(m.Content)
			if n := utf8.RuneCountInString(m.Content[lo:hi]); n > bestLen {
				best, bestLen = i, n
			}
		}
		if best < 0 {
			break
		}
		messages[best].Content = cut(messages[best].Content, excess)
	}
	return messages
}

// cuttable returns the byte range of content that truncation may remove. In framed user input only the text
// between the delimiters is cuttable, so the delimiters and the directive after them survive. cut reports
// whether the range was already shortened.
func cuttable(content string) (int, int, bool) {
	lo, hi := 0, len(content)
	if start := strings.Index(content, UserInputStart+"\n"); start >= 0 {
		textStart := start + len(UserInputStart) + 1
		if end := strings.LastIndex(content, "\n"+UserInputEnd); end >= textStart {
			lo, hi = textStart, end
		}
	}
	if strings.HasSuffix(content[lo:hi], truncatedMarker) {
		return lo, hi - len(truncatedMarker), true
	}
	return lo, hi, false
}

// cut removes the tail of the cuttable range of content so that it shrinks by excess characters, marker
// included, or as far as the range allows.
func cut(content string, excess int) string {
	lo, hi, alreadyCut := cuttable(content)
	text := []rune(content[lo:hi])
	need := excess
	marker := ""
	if !alreadyCut {
		need += utf8.RuneCountInString(truncatedMarker)
		marker = truncatedMarker
	}
	keep := max(len(text)-need, 0)
	return content[:lo] + string(text[:keep]) + marker + content[hi:]
}

func buildElided(first ai.Message, rest []ai.Message, pending ai.Message, omitted int) []ai.Message {
	out := make([]ai.Message, 0, len(rest)+3) //nolint:mnd // first, marker and pending
	out = append(out, first, ai.Message{Role: ai.RoleUser, Content: omittedMarker(omitted)})
	out = append(out, rest...)
	return append(out, pending)
}
