package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tutord/internal/llm"
	"tutord/pkg/models"
)

const summarySystem = `You compress one tutoring exchange into a single timeline line.`

// Summarizer produces the one-line timeline entry for a completed turn.
// A failed generation call degrades to a rule-based entry, never to an error.
type Summarizer struct {
	gen     llm.Generator
	log     *zap.Logger
	timeout time.Duration
}

// SummarizerConfig configures a Summarizer.
type SummarizerConfig struct {
	// Generator produces the summary line. Required.
	Generator llm.Generator
	// Logger receives fallback events. Defaults to zap.NewNop().
	Logger *zap.Logger
	// Timeout bounds the summary call. Defaults to 10s.
	Timeout time.Duration
}

// NewSummarizer creates a turn summarizer.
func NewSummarizer(cfg SummarizerConfig) *Summarizer {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Summarizer{gen: cfg.Generator, log: cfg.Logger, timeout: cfg.Timeout}
}

// Summarize returns the timeline entry for one exchange. intent is the
// classified intent of the student message.
func (s *Summarizer) Summarize(ctx context.Context, sess *models.Session, studentMsg, reply, intent string) string {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`Summarize this tutoring exchange in ONE short line (under 20 words),
past tense, naming what the student did and what the tutor did.

Student (%s): %s
Tutor: %s

Respond with the line only, no quotes.`, intent, truncateText(studentMsg, 400), truncateText(reply, 600))

	line, err := s.gen.Generate(callCtx, llm.Request{
		System:    summarySystem,
		Prompt:    prompt,
		Effort:    llm.EffortFast,
		MaxTokens: 100,
	})
	if err != nil {
		s.log.Debug("turn summary call failed, using rule-based entry",
			zap.String("session", sess.ID),
			zap.Error(err))
		return FallbackEntry(sess, intent)
	}
	line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), `"`))
	if line == "" {
		return FallbackEntry(sess, intent)
	}
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return line
}

// FallbackEntry builds a timeline line from session state alone.
func FallbackEntry(sess *models.Session, intent string) string {
	concept := "the lesson"
	if step := sess.CurrentStepData(); step != nil {
		concept = step.Concept
	}
	switch intent {
	case "answering":
		return fmt.Sprintf("Student answered a question on %s and was given feedback", concept)
	case "asking":
		return fmt.Sprintf("Student asked about %s and received a clarification", concept)
	case "expressing-confusion":
		return fmt.Sprintf("Student was confused about %s and got a re-explanation", concept)
	case "off-topic":
		return "Student went off topic and was redirected to the lesson"
	case "unsafe":
		return "Student message was flagged and met with safety guidance"
	default:
		return fmt.Sprintf("Lesson continued on %s", concept)
	}
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
