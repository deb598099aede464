package specialist

import (
	"context"
	"fmt"
	"strings"

	"tutord/internal/decision"
	"tutord/internal/llm"
)

const evaluatorSystem = `You grade one student answer in a tutoring dialogue. You are fair,
specific, and you name misconceptions rather than just marking wrong.
Partial credit is normal; students rarely answer perfectly.`

// Evaluator judges student answers against the pending question, or against
// the current concept when no question is pending.
type Evaluator struct {
	gen llm.Generator
}

// NewEvaluator creates the evaluator specialist.
func NewEvaluator(gen llm.Generator) *Evaluator {
	return &Evaluator{gen: gen}
}

// Name implements Runner.
func (e *Evaluator) Name() decision.Specialist { return decision.SpecialistEvaluator }

// Run implements Runner.
func (e *Evaluator) Run(ctx context.Context, in Input) (Result, error) {
	var b strings.Builder
	b.WriteString(studentContext(in))

	if q := in.Session.PendingQuestion; q != nil {
		b.WriteString("\nThe question being answered:\n")
		fmt.Fprintf(&b, "Question: %s\n", q.Text)
		fmt.Fprintf(&b, "Expected answer: %s\n", q.ExpectedAnswer)
		if q.Rubric != "" {
			fmt.Fprintf(&b, "Rubric: %s\n", q.Rubric)
		}
		if q.HintsUsed > 0 {
			fmt.Fprintf(&b, "The student used %d hint(s).\n", q.HintsUsed)
		}
	} else {
		b.WriteString("\nNo question is pending. Judge whether the student's statement shows a correct grasp of the current concept.\n")
	}

	if req, ok := in.Requirements.(*decision.EvaluatorRequirements); ok && req != nil {
		b.WriteString("\nGuidance for this evaluation:\n")
		if req.Focus != "" {
			fmt.Fprintf(&b, "Focus: %s\n", req.Focus)
		}
		if req.ExpectedLevel != "" {
			fmt.Fprintf(&b, "Expected level at this stage: %s\n", req.ExpectedLevel)
		}
		if req.BeLenient {
			b.WriteString("Be lenient; the student has been struggling.\n")
		}
		if req.WatchForMisconception != "" {
			fmt.Fprintf(&b, "Watch for this specific misconception: %s\n", req.WatchForMisconception)
		}
	}

	b.WriteString(`
Respond with JSON only:
{
  "is_correct": true,
  "score": 0.0,
  "feedback": "what you say to the student about their answer",
  "misconceptions": ["specific misconceptions revealed, if any"],
  "mastery_signal": "strong|adequate|needs_remediation",
  "needs_reexplanation": false
}
score is 0.0 to 1.0 with partial credit.`)

	var out Evaluation
	if err := llm.GenerateJSON(ctx, e.gen, llm.Request{
		System: evaluatorSystem,
		Prompt: b.String(),
		Effort: llm.EffortStandard,
	}, &out); err != nil {
		return Result{}, fmt.Errorf("evaluator: %w", err)
	}
	return Result{Name: e.Name(), Evaluation: &out}, nil
}
