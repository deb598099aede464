// Package composer merges specialist outputs into the single tutor reply and
// detects whether that reply asks the student a question.
package composer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tutord/internal/decision"
	"tutord/internal/llm"
	"tutord/internal/specialist"
	"tutord/pkg/models"
)

const composerSystem = `You are the voice of a tutor. Specialists have produced raw material
for this turn; you weave it into ONE natural reply to the student, in
order: acknowledge, address, advance. Do not mention the specialists or
that material was prepared for you.`

const fallbackSystem = `You are a tutor whose lesson tools just failed mid-turn. Write one
short, warm reply that acknowledges the student's message and keeps the
conversation alive without teaching new material or asking a graded
question.`

// staticApology is the last resort when even the fallback call fails.
const staticApology = "Sorry, I lost my train of thought for a moment. Could you say that again, or tell me if you'd like to keep going from where we were?"

// Composed is the composer's output for one turn.
type Composed struct {
	// Text is the reply shown to the student.
	Text string
	// Question is set when the reply asks the student something that the next
	// turn should treat as pending. The assessor's structured question wins
	// over a question detected in free text.
	Question *models.Question
	// UsedFallback is true when no specialist material was available and the
	// contextual fallback produced the reply.
	UsedFallback bool
	// Degraded is true when even the fallback call failed and Text is the
	// static apology.
	Degraded bool
}

type composePayload struct {
	Reply        string `json:"reply"`
	AsksQuestion bool   `json:"asks_question"`
	QuestionText string `json:"question_text,omitempty"`
}

func (p *composePayload) Validate() error {
	if strings.TrimSpace(p.Reply) == "" {
		return fmt.Errorf("composed reply is empty")
	}
	return nil
}

// Composer builds the turn reply.
type Composer struct {
	gen     llm.Generator
	log     *zap.Logger
	timeout time.Duration
}

// Config configures a Composer.
type Config struct {
	// Generator produces the reply. Required.
	Generator llm.Generator
	// Logger receives fallback and degradation events. Defaults to zap.NewNop().
	Logger *zap.Logger
	// Timeout bounds each composition call. Defaults to 20s.
	Timeout time.Duration
}

// New creates a Composer.
func New(cfg Config) *Composer {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Composer{gen: cfg.Generator, log: cfg.Logger, timeout: cfg.Timeout}
}

// Compose produces the tutor reply for one turn. It never returns an error:
// missing material degrades to a contextual fallback, and a failed fallback
// degrades to a static apology.
func (c *Composer) Compose(ctx context.Context, dec decision.Decision, results map[decision.Specialist]specialist.Result, in specialist.Input) Composed {
	present := presentResults(results)
	if len(present) == 0 {
		c.log.Warn("no specialist material for turn, composing contextual fallback",
			zap.String("session", in.Session.ID))
		return c.fallback(ctx, in)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var payload composePayload
	err := llm.GenerateJSON(callCtx, c.gen, llm.Request{
		System: composerSystem,
		Prompt: c.buildPrompt(dec, present, in),
		Effort: llm.EffortStandard,
	}, &payload)
	if err != nil {
		c.log.Warn("composition call failed, composing contextual fallback",
			zap.String("session", in.Session.ID),
			zap.Error(err))
		return c.fallback(ctx, in)
	}

	out := Composed{Text: strings.TrimSpace(payload.Reply)}
	out.Question = c.extractQuestion(payload, results, in.Session)
	return out
}

// extractQuestion decides what pending question, if any, this reply leaves
// open. A structured assessor question carries grading material and always
// takes precedence; a question the composer merely embedded in prose is
// captured with the current step's concept so the next turn still knows an
// answer is expected.
func (c *Composer) extractQuestion(payload composePayload, results map[decision.Specialist]specialist.Result, sess *models.Session) *models.Question {
	if res, ok := results[decision.SpecialistAssessor]; ok && !res.Absent && res.Question != nil {
		return &models.Question{
			Text:           res.Question.Text,
			ExpectedAnswer: res.Question.ExpectedAnswer,
			Concept:        res.Question.Concept,
			Rubric:         res.Question.Rubric,
			Hints:          res.Question.Hints,
		}
	}
	if !payload.AsksQuestion {
		return nil
	}
	text := strings.TrimSpace(payload.QuestionText)
	if text == "" {
		return nil
	}
	concept := ""
	if step := sess.CurrentStepData(); step != nil {
		concept = step.Concept
	}
	return &models.Question{
		Text:    text,
		Concept: concept,
		Rubric:  "informal check, judge against the current concept",
	}
}

func (c *Composer) buildPrompt(dec decision.Decision, present []specialist.Result, in specialist.Input) string {
	var b strings.Builder
	sess := in.Session

	if sess.Topic != nil {
		fmt.Fprintf(&b, "Topic: %s. ", sess.Topic.Name)
	}
	if step := sess.CurrentStepData(); step != nil {
		fmt.Fprintf(&b, "Current step: %s on %q.\n", step.Type, step.Concept)
	}
	fmt.Fprintf(&b, "Student grade: %d. Intent this turn: %s.\n", sess.Profile.Grade, dec.Intent)

	if in.Narrative != "" {
		b.WriteString("\nSession so far:\n")
		b.WriteString(in.Narrative)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nStudent said: %s\n", in.Message.Content)

	b.WriteString("\nMaterial from this turn:\n")
	for _, res := range present {
		switch {
		case res.Evaluation != nil:
			fmt.Fprintf(&b, "[evaluation] correct=%v score=%.2f: %s\n", res.Evaluation.Correct, res.Evaluation.Score, res.Evaluation.Feedback)
		case res.Explanation != nil:
			fmt.Fprintf(&b, "[explanation] %s\n", res.Explanation.Text)
			if res.Explanation.CheckQuestion != "" {
				fmt.Fprintf(&b, "[explanation check question] %s\n", res.Explanation.CheckQuestion)
			}
		case res.Question != nil:
			fmt.Fprintf(&b, "[question to ask] %s\n", res.Question.Text)
		case res.Redirect != nil:
			if res.Redirect.Brief != "" {
				fmt.Fprintf(&b, "[acknowledgment] %s\n", res.Redirect.Brief)
			}
			fmt.Fprintf(&b, "[redirect] %s\n", res.Redirect.Message)
		case res.Plan != nil:
			fmt.Fprintf(&b, "[plan note] %s\n", res.Plan.Rationale)
		}
	}

	b.WriteString(`
Weave the material into one reply: feedback before new explanation,
explanation before any new question, and end with the question if one
was prepared. Keep the reply at a length the material deserves.

Respond with JSON only:
{
  "reply": "the full reply to the student",
  "asks_question": false,
  "question_text": "the question the reply asks the student, verbatim, or empty"
}
asks_question is true whenever the reply expects an answer from the
student, including check questions you added yourself.`)

	return b.String()
}

// fallback produces a reply with no specialist material. It runs on a fresh
// deadline detached from the turn's, so an expired turn budget cannot strand
// the student without a reply.
func (c *Composer) fallback(ctx context.Context, in specialist.Input) Composed {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	var b strings.Builder
	if step := in.Session.CurrentStepData(); step != nil {
		fmt.Fprintf(&b, "The lesson was on %q.\n", step.Concept)
	}
	if in.Narrative != "" {
		fmt.Fprintf(&b, "Session so far:\n%s\n", in.Narrative)
	}
	fmt.Fprintf(&b, "\nStudent said: %s\n", in.Message.Content)
	b.WriteString("\nWrite the reply. Plain text, no JSON.")

	text, err := c.gen.Generate(callCtx, llm.Request{
		System:    fallbackSystem,
		Prompt:    b.String(),
		Effort:    llm.EffortFast,
		MaxTokens: 300,
	})
	reply := strings.TrimSpace(text)
	if err != nil || reply == "" {
		c.log.Error("fallback composition failed, serving static apology",
			zap.String("session", in.Session.ID),
			zap.Error(err))
		return Composed{Text: staticApology, UsedFallback: true, Degraded: true}
	}
	return Composed{Text: reply, UsedFallback: true}
}

func presentResults(results map[decision.Specialist]specialist.Result) []specialist.Result {
	order := []decision.Specialist{
		decision.SpecialistEvaluator,
		decision.SpecialistExplainer,
		decision.SpecialistSteering,
		decision.SpecialistPlanner,
		decision.SpecialistAssessor,
	}
	var present []specialist.Result
	for _, name := range order {
		if res, ok := results[name]; ok && !res.Absent {
			present = append(present, res)
		}
	}
	return present
}
