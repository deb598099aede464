package specialist

import (
	"context"
	"fmt"
	"strings"

	"tutord/internal/decision"
	"tutord/internal/llm"
)

const assessorSystem = `You write one assessment question for one student in a tutoring
dialogue. The question matches the student's grade level and tests the
concept actually being taught, not trivia around it.`

// Assessor generates check and practice questions with grading material.
type Assessor struct {
	gen llm.Generator
}

// NewAssessor creates the assessor specialist.
func NewAssessor(gen llm.Generator) *Assessor {
	return &Assessor{gen: gen}
}

// Name implements Runner.
func (a *Assessor) Name() decision.Specialist { return decision.SpecialistAssessor }

// Run implements Runner.
func (a *Assessor) Run(ctx context.Context, in Input) (Result, error) {
	var b strings.Builder
	b.WriteString(studentContext(in))

	concept := ""
	if step := in.Session.CurrentStepData(); step != nil {
		concept = step.Concept
		if step.QuestionType != "" {
			fmt.Fprintf(&b, "\nQuestion style for this step: %s\n", step.QuestionType)
		}
	}

	if req, ok := in.Requirements.(*decision.AssessorRequirements); ok && req != nil {
		b.WriteString("\nGuidance for this question:\n")
		if req.Purpose != "" {
			fmt.Fprintf(&b, "Purpose: %s\n", req.Purpose)
		}
		if req.Difficulty != "" {
			fmt.Fprintf(&b, "Difficulty: %s\n", req.Difficulty)
		}
		if len(req.ConceptsToTest) > 0 {
			fmt.Fprintf(&b, "Concepts to test: %s\n", strings.Join(req.ConceptsToTest, "; "))
			concept = req.ConceptsToTest[0]
		}
		if len(req.AvoidQuestionStyles) > 0 {
			fmt.Fprintf(&b, "Avoid these question styles: %s\n", strings.Join(req.AvoidQuestionStyles, "; "))
		}
	}

	// Under sequential execution the explainer may have just taught something
	// the question should check.
	if prior, ok := in.Prior[decision.SpecialistExplainer]; ok && prior.Explanation != nil {
		fmt.Fprintf(&b, "\nThe tutor just explained (check this material): %s\n", truncatePrompt(prior.Explanation.Text, 500))
	}

	b.WriteString(`
Respond with JSON only:
{
  "question": "the question to ask",
  "expected_answer": "what a correct answer contains",
  "rubric": "how to judge partial answers",
  "hints": ["hint 1 (vague)", "hint 2 (more direct)"],
  "concept": "the concept this tests"
}`)

	var out GeneratedQuestion
	if err := llm.GenerateJSON(ctx, a.gen, llm.Request{
		System: assessorSystem,
		Prompt: b.String(),
		Effort: llm.EffortStandard,
	}, &out); err != nil {
		return Result{}, fmt.Errorf("assessor: %w", err)
	}
	if out.Concept == "" {
		out.Concept = concept
	}
	return Result{Name: a.Name(), Question: &out}, nil
}

func truncatePrompt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
